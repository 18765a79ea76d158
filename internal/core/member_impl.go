package core

import "github.com/dkeye/Consult/internal/domain"

// memberSession implements MemberSession by pairing meta + transport.
type memberSession struct {
	sid    SessionID
	meta   *domain.Member
	signal SignalConnection
}

func NewMemberSession(sid SessionID, meta *domain.Member, signal SignalConnection) MemberSession {
	return &memberSession{sid: sid, meta: meta, signal: signal}
}

func (m *memberSession) ID() SessionID            { return m.sid }
func (m *memberSession) Meta() *domain.Member     { return m.meta }
func (m *memberSession) Signal() SignalConnection { return m.signal }

// Participant renders the roster view of a member.
func Participant(ms MemberSession) domain.ParticipantInfo {
	u := ms.Meta().User
	return domain.ParticipantInfo{
		SocketID: string(ms.ID()),
		UserID:   u.ID,
		UserType: u.Type,
		UserName: u.Username,
		JoinedAt: ms.Meta().JoinedAt,
	}
}

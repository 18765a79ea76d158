package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dkeye/Consult/internal/adapters/rtc"
	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/dkeye/Consult/internal/peer"
	"github.com/dkeye/Consult/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	flagServer      string
	flagUserID      string
	flagUserName    string
	flagUserType    string
	flagICE         []string
	flagChat        string
	flagShareScreen bool
)

var joinCmd = &cobra.Command{
	Use:   "join <room-id>",
	Short: "Join a room and stay until interrupted",
	Long: `Join a consultation room and negotiate with whoever is (or becomes) present.

Examples:
  consult-peer join room-A1 --user pat1 --name Pat
  consult-peer join room-A1 --user doc1 --type doctor --chat "hello" --share-screen`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return joinRoom(cmd.Context(), args[0])
	},
}

func init() {
	joinCmd.Flags().StringVarP(&flagServer, "server", "s", "ws://localhost:6000/api/ws/signal", "signaling endpoint")
	joinCmd.Flags().StringVarP(&flagUserID, "user", "u", "", "user id (required)")
	joinCmd.Flags().StringVarP(&flagUserName, "name", "n", "", "display name (defaults to the user id)")
	joinCmd.Flags().StringVarP(&flagUserType, "type", "t", string(domain.UserTypePatient), "doctor or patient")
	joinCmd.Flags().StringSliceVar(&flagICE, "ice", nil, "STUN/TURN urls")
	joinCmd.Flags().StringVar(&flagChat, "chat", "", "chat message to send once joined")
	joinCmd.Flags().BoolVar(&flagShareScreen, "share-screen", false, "share a synthetic screen once connected")
	_ = joinCmd.MarkFlagRequired("user")
}

func joinRoom(parent context.Context, roomID string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	userType := domain.UserType(flagUserType)
	if !userType.Valid() {
		return fmt.Errorf("--type: %w", domain.ErrUserType)
	}
	name := flagUserName
	if name == "" {
		name = flagUserID
	}

	client, err := peer.Dial(ctx, flagServer)
	if err != nil {
		return err
	}
	defer client.Close()

	iceConfig := rtc.ConfigFor(flagICE)
	var (
		m        *peer.Machine
		chatOnce sync.Once
	)
	m = peer.NewMachine(peer.Config{
		RoomID:   roomID,
		UserID:   flagUserID,
		UserName: name,
		UserType: userType,
		Devices:  peer.StaticDevices{},
		Signal:   client,
		NewConnection: func() (core.MediaConnection, error) {
			return rtc.NewWebRTCConnection(iceConfig, flagUserID)
		},
		OnStateChange: func(s peer.State) {
			log.Info().Str("module", "peer").Str("state", s.String()).Msg("state")
			if s == peer.StateConnected && flagShareScreen {
				go func() {
					if err := m.StartScreenShare(ctx); err != nil {
						log.Warn().Err(err).Msg("screen share")
					}
				}()
			}
		},
		OnRoster: func(roster []domain.ParticipantInfo) {
			log.Info().Int("members", len(roster)).Msg("room roster")
			if flagChat != "" {
				chatOnce.Do(func() {
					if err := m.Chat(flagChat); err != nil {
						log.Warn().Err(err).Msg("send chat")
					}
				})
			}
		},
		OnChat: func(c protocol.ChatBroadcast) {
			log.Info().Str("from", c.UserName).Str("user_type", string(c.UserType)).Msg(c.Message)
		},
		OnRemoteScreenShare: func(n protocol.ScreenShareNotice) {
			log.Info().Str("from", n.UserName).Bool("sharing", n.IsSharing).Msg("remote screen share")
		},
		OnRemoteTrack: func(track *webrtc.TrackRemote) {
			log.Info().Str("kind", track.Kind().String()).Str("codec", track.Codec().MimeType).Msg("receiving remote track")
		},
		OnServerError: func(msg string) {
			log.Warn().Str("message", msg).Msg("server rejected a frame")
		},
	})
	defer m.Close()

	if err := m.AcquireMedia(ctx); err != nil {
		var mErr *peer.MediaAccessError
		if errors.As(err, &mErr) {
			return errors.New(mErr.UserMessage())
		}
		return err
	}
	if audio, ok := m.Stream().Audio.(*peer.SampleTrack); ok {
		go peer.FeedSilence(ctx, audio)
	}
	if err := m.CreateConnection(); err != nil {
		return err
	}
	if err := m.Join(); err != nil {
		return err
	}

	log.Info().Str("room", roomID).Str("user", flagUserID).Str("server", flagServer).Msg("joining")
	err = m.Run(ctx, client.Incoming())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

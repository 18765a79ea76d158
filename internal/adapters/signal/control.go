package signal

import "github.com/dkeye/Consult/internal/app/orch"

func (ctl *SignalWSController) handlePing(sup *orch.Supervisor) {
	sup.Ping()
}

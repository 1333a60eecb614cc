// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package procgroup

import (
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/vinefeeder/envied/internal/log"
	"github.com/vinefeeder/envied/internal/metrics"
)

// Terminate attempts to gracefully stop a process group belonging to jobID.
// It sends SIGTERM, waits for the process to exit (via the provided wait
// channel), and if it doesn't exit within grace, sends SIGKILL. It consumes
// and returns the error from waitCh. It is safe to call on nil commands
// (returns nil). jobID is used only to correlate the SIGTERM/SIGKILL log
// lines with the job whose subprocess tree is being torn down; pass "" when
// none is available.
func Terminate(cmd *exec.Cmd, waitCh <-chan error, grace time.Duration, jobID string) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	logger := log.L()
	if jobID != "" {
		l := logger.With().Str(log.FieldJobID, jobID).Logger()
		logger = &l
	}

	// 1. Send SIGTERM to Process Group
	// Note: If the process already finished normally, Kill calls are no-ops or harmless errors (ESRCH).
	if err := Kill(cmd, syscall.SIGTERM); err == nil {
		metrics.IncProcTerminate("SIGTERM", "sent")
		logger.Info().Str(log.FieldEvent, "proc_signal").Str("signal", "SIGTERM").Msg("sent SIGTERM to process group")
	} else if strings.Contains(err.Error(), "process already finished") || strings.Contains(err.Error(), "no such process") {
		metrics.IncProcTerminate("SIGTERM", "esrch")
	} else {
		metrics.IncProcTerminate("SIGTERM", "error")
		logger.Warn().Err(err).Str(log.FieldEvent, "proc_signal").Str("signal", "SIGTERM").Msg("failed to signal process group")
	}

	select {
	case err := <-waitCh:
		// Process exited voluntarily or due to SIGTERM
		if err == nil {
			metrics.IncProcWait("exit0")
		} else {
			metrics.IncProcWait("exit_nonzero")
		}
		return err
	case <-time.After(grace):
		// 2. Timeout -> Force Kill (SIGKILL)
		if err := Kill(cmd, syscall.SIGKILL); err == nil {
			metrics.IncProcTerminate("SIGKILL", "sent")
			logger.Warn().Str(log.FieldEvent, "proc_signal").Str("signal", "SIGKILL").Msg("grace period elapsed, sent SIGKILL to process group")
		} else if strings.Contains(err.Error(), "process already finished") || strings.Contains(err.Error(), "no such process") {
			metrics.IncProcTerminate("SIGKILL", "esrch")
		} else {
			metrics.IncProcTerminate("SIGKILL", "error")
			logger.Warn().Err(err).Str(log.FieldEvent, "proc_signal").Str("signal", "SIGKILL").Msg("failed to signal process group")
		}

		// 3. Always Drain waitCh
		// We ignore the error from SIGKILL and return the result of the Wait().
		// If the process was blocked, SIGKILL should free it.
		err := <-waitCh
		if err == nil {
			metrics.IncProcWait("forced_exit0")
		} else {
			metrics.IncProcWait("forced_error")
		}
		return err
	}
}

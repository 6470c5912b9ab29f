package main

import (
	"context"
	"log/slog"
	"time"
)

// Effectors holds the output devices the effects layer drives.
type Effectors struct {
	LED     LEDDriver
	Printer PrinterClient

	// PrinterTimeout bounds each printer call.
	PrinterTimeout time.Duration
}

// runEffect executes a single reducer-emitted Command (side effect) against
// the LED driver or the printer and emits an observation Event via onEvent.
//
// Design rules:
// - This function is allowed to perform I/O.
// - It must never call Reduce() directly; it only emits Events to be reduced by the daemon loop.
func runEffect(
	ctx context.Context,
	fx Effectors,
	cmd Command,
	logger *slog.Logger,
	onEvent func(Event),
) {
	if onEvent == nil {
		// No place to report observations/errors; nothing sensible to do.
		return
	}

	now := time.Now()

	switch c := cmd.(type) {
	case CmdSetDuty:
		if fx.LED == nil {
			onEvent(CommandFailed{Command: cmd, Err: errNoDevice{what: "LED driver"}, At: now})
			return
		}
		if err := fx.LED.SetDuty(c.Percent); err != nil {
			logger.Error("LED SetDuty failed", "error", err, "percent", c.Percent)
			onEvent(CommandFailed{Command: cmd, Err: err, At: now})
			return
		}
		onEvent(LEDDutyObserved{Duty: c.Percent, At: now})

	case CmdJog, CmdHome, CmdCancelPrint:
		if fx.Printer == nil {
			onEvent(CommandFailed{Command: cmd, Err: errNoDevice{what: "printer client"}, At: now})
			return
		}
		pctx, cancel := printerContext(ctx, fx.PrinterTimeout)
		err := runPrinterCommand(pctx, fx.Printer, cmd)
		cancel()
		if err != nil {
			logger.Error("printer command failed", "error", err, "command", cmd.String())
			onEvent(CommandFailed{Command: cmd, Err: err, At: now})
			return
		}
		logger.Info("printer command sent", "command", cmd.String())
		onEvent(PrinterCommandDone{Command: cmd, At: now})

	case CmdPublishState:
		// Deliver reducer-produced snapshot to the requester.
		if c.Reply == nil {
			logger.Warn("state snapshot requested with nil reply channel")
			return
		}

		// Never block the effects worker indefinitely.
		select {
		case c.Reply <- c.Snapshot:
		default:
			logger.Warn("state snapshot reply channel not ready; dropping snapshot")
		}

	default:
		// Unknown command: record failure so reducer can react (if desired).
		logger.Warn("unknown command type", "command", cmd.String())
		onEvent(CommandFailed{
			Command: cmd,
			Err:     errUnknownCommand{cmd: cmd},
			At:      now,
		})
	}
}

func runPrinterCommand(ctx context.Context, p PrinterClient, cmd Command) error {
	switch c := cmd.(type) {
	case CmdJog:
		return p.Jog(ctx, c.Axis, c.Distance)
	case CmdHome:
		return p.Home(ctx, c.Axes...)
	case CmdCancelPrint:
		return p.Cancel(ctx)
	default:
		return errUnknownCommand{cmd: cmd}
	}
}

func printerContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// errNoDevice indicates the daemon was asked to drive an output it does not have.
type errNoDevice struct {
	what string
}

func (e errNoDevice) Error() string { return "no " + e.what }

type errUnknownCommand struct {
	cmd Command
}

func (e errUnknownCommand) Error() string { return "unknown command: " + e.cmd.String() }

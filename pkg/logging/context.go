package logging

import (
	"log/slog"
)

// WithTxn creates a logger with transaction context.
//
// Example:
//
//	log := logging.WithTxn(txnID)
//	log.Info("acquiring lock")
func WithTxn(txnID int64) *slog.Logger {
	return GetLogger().With("txn_id", txnID)
}

// WithPage creates a logger with page context. Useful for buffer pool and
// storage operations.
func WithPage(pageID int32) *slog.Logger {
	return GetLogger().With("page_id", pageID)
}

// WithFrame creates a logger with frame context, for replacer and pool
// instance bookkeeping.
func WithFrame(frameID int) *slog.Logger {
	return GetLogger().With("frame_id", frameID)
}

// WithRID creates a logger with record-id context. Useful for lock manager
// operations, which key everything off the RID.
func WithRID(pageID int32, slot uint32) *slog.Logger {
	return GetLogger().With("page_id", pageID, "slot", slot)
}

// WithComponent creates a logger with component/subsystem context.
func WithComponent(component string) *slog.Logger {
	return GetLogger().With("component", component)
}

// WithError creates a logger with error context.
func WithError(err error) *slog.Logger {
	return GetLogger().With("error", err.Error())
}

// Package devicesync moves punches from a biometric terminal into orgdesk.
//
// The server owns the sync watermark, so every poll asks it where to resume
// and a restarted process neither re-reads old records nor skips new ones.
package devicesync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"text/tabwriter"
	"time"
)

// DefaultBatchSize is the usual number of records per upload.
const DefaultBatchSize = 200

// Terminal reads from the attendance device.
type Terminal interface {
	Info(ctx context.Context) (TerminalInfo, error)
	Users(ctx context.Context) ([]TerminalUser, error)
	Attendance(ctx context.Context, since time.Time) ([]Punch, error)
}

// Server accepts device records.
type Server interface {
	Watermark(ctx context.Context) (time.Time, error)
	Upload(ctx context.Context, punches []Punch) (UploadResult, error)
}

// SyncResult summarizes one poll.
type SyncResult struct {
	Fetched   int
	Batches   int
	Processed int
	Skipped   int
	Unmatched int
	Watermark time.Time
}

// Session carries everything a poll needs. It holds no state between polls.
type Session struct {
	Terminal  Terminal
	Server    Server
	BatchSize int
	Logger    *slog.Logger
}

func (s *Session) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// SyncOnce uploads every terminal record newer than the server watermark.
func (s *Session) SyncOnce(ctx context.Context) (result SyncResult, err error) {
	if s == nil || s.Terminal == nil || s.Server == nil {
		err = errors.New("devicesync: session is not configured")
		return
	}
	logger := s.logger().With("component", "devicesync", "operation", "SyncOnce")
	started := time.Now()
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "device sync failed", "error", err)
			return
		}
		logger.InfoContext(ctx, "device sync finished",
			"fetched", result.Fetched,
			"processed", result.Processed,
			"skipped", result.Skipped,
			"unmatched", result.Unmatched,
			"batches", result.Batches,
			"watermark", result.Watermark,
			"duration", time.Since(started),
		)
	}()

	watermark, err := s.Server.Watermark(ctx)
	if err != nil {
		err = fmt.Errorf("fetch watermark: %w", err)
		return
	}
	result.Watermark = watermark

	punches, err := s.Terminal.Attendance(ctx, watermark)
	if err != nil {
		err = fmt.Errorf("read terminal attendance: %w", err)
		return
	}
	pending := newerThan(punches, watermark)
	result.Fetched = len(pending)
	if len(pending) == 0 {
		return
	}

	size := s.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	for start, end := 0, 0; start < len(pending); start = end {
		end = batchEnd(pending, start, size)
		var batch UploadResult
		batch, err = s.Server.Upload(ctx, pending[start:end])
		if err != nil {
			err = fmt.Errorf("upload batch %d: %w", result.Batches+1, err)
			return
		}
		result.Batches++
		result.Processed += batch.Processed
		result.Skipped += batch.Skipped
		result.Unmatched += batch.Unmatched
		if batch.Watermark.After(result.Watermark) {
			result.Watermark = batch.Watermark
		}
	}
	return
}

// batchEnd returns the end of the batch starting at start. A batch holds size
// records plus any that share the last record's timestamp, so one timestamp
// never spans two uploads.
func batchEnd(pending []Punch, start, size int) int {
	end := start + size
	if end >= len(pending) {
		return len(pending)
	}
	for end < len(pending) && pending[end].Timestamp.Equal(pending[end-1].Timestamp) {
		end++
	}
	return end
}

// newerThan drops records at or before watermark and orders the rest oldest first.
func newerThan(punches []Punch, watermark time.Time) []Punch {
	out := make([]Punch, 0, len(punches))
	for _, p := range punches {
		if p.Timestamp.IsZero() || !p.Timestamp.After(watermark) {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// Test checks that both the terminal and the server answer.
func (s *Session) Test(ctx context.Context) error {
	var errs []error
	if info, err := s.Terminal.Info(ctx); err != nil {
		errs = append(errs, fmt.Errorf("terminal unreachable: %w", err))
	} else {
		s.logger().InfoContext(ctx, "terminal reachable", "serial", info.SerialNumber, "model", info.Model)
	}
	if mark, err := s.Server.Watermark(ctx); err != nil {
		errs = append(errs, fmt.Errorf("server unreachable: %w", err))
	} else {
		s.logger().InfoContext(ctx, "server reachable", "watermark", mark)
	}
	return errors.Join(errs...)
}

// Info writes the terminal details and its enrolled users as a table.
func (s *Session) Info(ctx context.Context, w io.Writer) error {
	info, err := s.Terminal.Info(ctx)
	if err != nil {
		return fmt.Errorf("read terminal info: %w", err)
	}
	users, err := s.Terminal.Users(ctx)
	if err != nil {
		return fmt.Errorf("read terminal users: %w", err)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Serial\t%s\n", info.SerialNumber)
	fmt.Fprintf(tw, "Model\t%s\n", info.Model)
	fmt.Fprintf(tw, "Firmware\t%s\n", info.Firmware)
	fmt.Fprintf(tw, "Users\t%d\n", info.UserCount)
	fmt.Fprintf(tw, "Records\t%d\n", info.RecordCount)
	if !info.DeviceTime.IsZero() {
		fmt.Fprintf(tw, "Device time\t%s\n", info.DeviceTime.Format(time.RFC3339))
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "USER ID\tNAME\tROLE\tCARD")
	for _, u := range users {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", u.UserID, u.Name, u.Role, u.CardNo)
	}
	return tw.Flush()
}

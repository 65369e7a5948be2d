package purge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/diamondburned/arikawa/v3/discord"
	"go.uber.org/zap"

	"github.com/harukimoto/kosodate/internal/platform"
)

const (
	// bulkDeleteWindow is the platform's bulk-delete eligibility window.
	// The margin keeps a batch from straddling the cutoff mid-flight.
	bulkDeleteWindow = 14*24*time.Hour - 10*time.Minute

	// bulkBatchSize is the platform cap on one batched delete call.
	bulkBatchSize = 100

	// scanPageSize is how many messages one history page fetches.
	scanPageSize = 100

	// maxScanPasses bounds history pages per channel per invocation, so
	// one run over a huge channel terminates; a fresh invocation resumes
	// naturally by re-scanning.
	maxScanPasses = 50

	// deleteAttempts bounds retries of a failing deletion before the
	// message is recorded as a permanent failure.
	deleteAttempts = 3

	// maxBackoff caps the growing wait applied on repeated rate limits.
	maxBackoff = time.Minute
)

// SkippedChannel records a channel the purge could not sweep.
type SkippedChannel struct {
	ChannelID discord.ChannelID
	Name      string
	Reason    string
}

// FailedMessage records a message that survived all deletion attempts.
type FailedMessage struct {
	ChannelID discord.ChannelID
	MessageID discord.MessageID
	Reason    string
}

// Report summarizes one purge run.
type Report struct {
	Deleted     int
	RateLimited int
	Skipped     []SkippedChannel
	Failed      []FailedMessage
}

// Summary renders the report for the invoking operator.
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "deleted=%d rate_limited=%d skipped=%d failed=%d",
		r.Deleted, r.RateLimited, len(r.Skipped), len(r.Failed))
	for _, s := range r.Skipped {
		fmt.Fprintf(&b, "\nskipped #%s: %s", s.Name, s.Reason)
	}
	for _, f := range r.Failed {
		fmt.Fprintf(&b, "\nfailed %s in %s: %s", f.MessageID, f.ChannelID, f.Reason)
	}
	return b.String()
}

// Options selects what one purge run covers.
type Options struct {
	Target   discord.UserID
	Channels []discord.Channel
	// Limit caps total deletions; zero means no cap.
	Limit int
}

// Purger deletes all messages by a target author, best-effort and
// at-least-once. Channels are swept sequentially to respect the shared
// rate-limit budget.
type Purger struct {
	history platform.History
	deleter platform.Deleter
	perms   platform.Permissions
	self    discord.UserID
	pacer   *Pacer
	logger  *zap.Logger

	// sleep and now are swapped out in tests.
	sleep func(time.Duration)
	now   func() time.Time
}

// NewPurger wires a purger. self is the bot's own user, used for
// permission checks.
func NewPurger(
	history platform.History,
	deleter platform.Deleter,
	perms platform.Permissions,
	self discord.UserID,
	logger *zap.Logger,
) *Purger {
	return &Purger{
		history: history,
		deleter: deleter,
		perms:   perms,
		self:    self,
		pacer:   DefaultPacer(),
		logger:  logger,
		sleep:   time.Sleep,
		now:     time.Now,
	}
}

// Run sweeps every channel in opts sequentially and reports the outcome.
// Cancellation stops between deletions and returns the partial report.
func (p *Purger) Run(ctx context.Context, opts Options) (*Report, error) {
	report := &Report{}

	for _, ch := range opts.Channels {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if opts.Limit > 0 && report.Deleted >= opts.Limit {
			break
		}

		p.sweepChannel(ctx, ch, opts, report)
	}

	p.logger.Info("purge complete",
		zap.String("target", opts.Target.String()),
		zap.Int("deleted", report.Deleted),
		zap.Int("rate_limited", report.RateLimited),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("failed", len(report.Failed)))
	return report, nil
}

// sweepChannel scans one channel backward and deletes what it collects.
func (p *Purger) sweepChannel(ctx context.Context, ch discord.Channel, opts Options, report *Report) {
	perms, err := p.perms.Permissions(ch.ID, p.self)
	if err != nil {
		report.Skipped = append(report.Skipped, SkippedChannel{
			ChannelID: ch.ID, Name: ch.Name,
			Reason: fmt.Sprintf("permission lookup failed: %v", err),
		})
		return
	}
	if !perms.Has(discord.PermissionManageMessages) {
		report.Skipped = append(report.Skipped, SkippedChannel{
			ChannelID: ch.ID, Name: ch.Name,
			Reason: "missing manage-messages permission",
		})
		return
	}

	targets := p.scan(ch.ID, opts, report)
	if len(targets) == 0 {
		return
	}

	recent, old := p.partition(targets)
	p.bulkDelete(ctx, ch.ID, recent, report)
	p.deleteIndividually(ctx, ch.ID, old, report)
}

// scan pages backward through history collecting the target's messages,
// bounded by the per-invocation pass count and the overall limit.
func (p *Purger) scan(channelID discord.ChannelID, opts Options, report *Report) []discord.Message {
	var collected []discord.Message
	var cursor discord.MessageID

	for pass := 0; pass < maxScanPasses; pass++ {
		page, err := p.history.MessagesBefore(channelID, cursor, scanPageSize)
		if err != nil {
			p.logger.Warn("history scan failed, keeping what we have",
				zap.String("channel_id", channelID.String()),
				zap.Error(err))
			break
		}
		if len(page) == 0 {
			break
		}

		for _, msg := range page {
			if msg.Author.ID != opts.Target {
				continue
			}
			collected = append(collected, msg)
			if opts.Limit > 0 && report.Deleted+len(collected) >= opts.Limit {
				return collected
			}
		}

		// Pages come back newest first; continue before the oldest seen.
		cursor = page[len(page)-1].ID
		if len(page) < scanPageSize {
			break
		}
	}

	return collected
}

// partition splits messages by bulk-delete eligibility, judged from the
// snowflake creation time.
func (p *Purger) partition(msgs []discord.Message) (recent, old []discord.MessageID) {
	cutoff := p.now().Add(-bulkDeleteWindow)
	for _, msg := range msgs {
		if msg.ID.Time().After(cutoff) {
			recent = append(recent, msg.ID)
		} else {
			old = append(old, msg.ID)
		}
	}
	return recent, old
}

// bulkDelete removes recent messages in capped batches. The platform's
// batch endpoint requires at least two IDs, so a trailing single falls
// back to an individual delete.
func (p *Purger) bulkDelete(ctx context.Context, channelID discord.ChannelID, ids []discord.MessageID, report *Report) {
	for start := 0; start < len(ids); start += bulkBatchSize {
		if ctx.Err() != nil {
			return
		}

		end := start + bulkBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		if len(batch) == 1 {
			p.deleteIndividually(ctx, channelID, batch, report)
			continue
		}

		if err := p.deleteBatch(ctx, channelID, batch, report); err != nil {
			// A batch that keeps failing degrades to per-message deletes
			// so one bad ID cannot sink its whole batch.
			p.logger.Warn("bulk delete failed, falling back to individual deletes",
				zap.String("channel_id", channelID.String()),
				zap.Int("batch_size", len(batch)),
				zap.Error(err))
			p.deleteIndividually(ctx, channelID, batch, report)
			continue
		}

		report.Deleted += len(batch)
		p.pace(ctx)
	}
}

// deleteBatch issues one batched call, absorbing rate limits.
func (p *Purger) deleteBatch(ctx context.Context, channelID discord.ChannelID, batch []discord.MessageID, report *Report) error {
	var lastErr error
	for attempt := 1; attempt <= deleteAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := p.deleter.DeleteMessages(channelID, batch)
		if err == nil {
			return nil
		}
		if rl, ok := platform.AsRateLimit(err); ok {
			report.RateLimited++
			p.sleep(p.backoff(rl.RetryAfter, report.RateLimited))
			attempt-- // Rate limits do not consume attempts.
			continue
		}
		lastErr = err
	}
	return lastErr
}

// deleteIndividually removes messages one at a time with bounded retries.
func (p *Purger) deleteIndividually(ctx context.Context, channelID discord.ChannelID, ids []discord.MessageID, report *Report) {
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}

		var lastErr error
		deleted := false
		for attempt := 1; attempt <= deleteAttempts; attempt++ {
			err := p.deleter.DeleteMessage(channelID, id)
			if err == nil {
				deleted = true
				break
			}
			if platform.IsNotFound(err) {
				// Already gone; the goal state is reached.
				deleted = true
				break
			}
			if rl, ok := platform.AsRateLimit(err); ok {
				report.RateLimited++
				p.sleep(p.backoff(rl.RetryAfter, report.RateLimited))
				attempt--
				continue
			}
			lastErr = err
			if attempt < deleteAttempts {
				p.sleep(time.Second)
			}
		}

		if deleted {
			report.Deleted++
			p.pace(ctx)
			continue
		}
		report.Failed = append(report.Failed, FailedMessage{
			ChannelID: channelID,
			MessageID: id,
			Reason:    fmt.Sprintf("%v", lastErr),
		})
	}
}

// backoff waits at least the platform-supplied duration, doubling on
// consecutive limit hits up to maxBackoff.
func (p *Purger) backoff(retryAfter time.Duration, hits int) time.Duration {
	wait := retryAfter
	for i := 1; i < hits && wait < maxBackoff; i++ {
		wait *= 2
	}
	if wait > maxBackoff {
		wait = maxBackoff
	}
	return wait
}

// pace spaces deletion calls out by roughly a second.
func (p *Purger) pace(ctx context.Context) {
	if err := p.pacer.Wait(ctx); err != nil {
		p.logger.Debug("pacing interrupted", zap.Error(err))
	}
}

package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"github.com/nottyvote/votebot/internal/telegram"
)

// DailyReportArgs triggers the daily housekeeping summary posted to the
// owner's log channel.
type DailyReportArgs struct{}

func (DailyReportArgs) Kind() string { return "daily_report" }

type DailyReportWorker struct {
	river.WorkerDefaults[DailyReportArgs]
	store        Store
	chat         telegram.Client
	logChannelID int64
	log          *zap.Logger
}

func NewDailyReportWorker(store Store, chat telegram.Client, logChannelID int64, log *zap.Logger) *DailyReportWorker {
	return &DailyReportWorker{store: store, chat: chat, logChannelID: logChannelID, log: log}
}

func (w *DailyReportWorker) Work(ctx context.Context, job *river.Job[DailyReportArgs]) error {
	if w.logChannelID == 0 {
		return nil
	}
	st, err := w.store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("load stats: %w", err)
	}
	text := fmt.Sprintf(
		"📊 Daily report (%s)\n\n"+
			"Active polls: %d\n"+
			"Total polls: %d\n"+
			"Participation posts: %d\n"+
			"Ballots: %d\n"+
			"Unique participants: %d\n"+
			"Users: %d\n"+
			"Channels: %d",
		time.Now().UTC().Format("2006-01-02"),
		st.ActivePolls, st.TotalPolls, st.TotalPosts, st.TotalBallots,
		st.UniqueParticipants, st.TotalUsers, st.TotalChannels)
	if st.MostActiveChannel != "" {
		text += fmt.Sprintf("\nMost active: %s (%d posts)",
			telegram.At(st.MostActiveChannel), st.MostActiveChannelN)
	}
	if err := w.chat.SendMessage(ctx, w.logChannelID, text); err != nil {
		return fmt.Errorf("post report: %w", err)
	}
	w.log.Info("daily report posted")
	return nil
}

// Periodic wires the sweeps into river's periodic scheduler. The
// reconcile job also runs once at startup so restarts do not postpone
// revocations by a full interval.
func Periodic(sweepInterval time.Duration) []*river.PeriodicJob {
	return []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(sweepInterval),
			func() (river.JobArgs, *river.InsertOpts) {
				return ReconcileArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
		river.NewPeriodicJob(
			river.PeriodicInterval(24*time.Hour),
			func() (river.JobArgs, *river.InsertOpts) {
				return DailyReportArgs{}, nil
			},
			nil,
		),
	}
}

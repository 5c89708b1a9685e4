package jobstore

import (
	"path/filepath"
	"testing"
	"time"
)

func TestCreateJobAtSchedule(t *testing.T) {
	s := NewCronStore(filepath.Join(t.TempDir(), "cron.json"))

	future := time.Now().Add(time.Hour).UnixMilli()
	job, err := s.CreateJob("chat-1", "one-shot", Schedule{Kind: ScheduleAt, AtMs: future}, Payload{Kind: PayloadAgentTurn, Message: "hi"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if job.NextRun == nil {
		t.Fatal("expected a computed nextRun")
	}
	if !job.Enabled {
		t.Fatal("expected job to be enabled")
	}
}

func TestCreateJobAtSchedulePastIsTerminal(t *testing.T) {
	s := NewCronStore(filepath.Join(t.TempDir(), "cron.json"))

	past := time.Now().Add(-time.Hour).UnixMilli()
	job, err := s.CreateJob("chat-1", "already-past", Schedule{Kind: ScheduleAt, AtMs: past}, Payload{Kind: PayloadAgentTurn, Message: "hi"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if job.NextRun != nil {
		t.Fatalf("expected nil nextRun for a past at-schedule, got %v", job.NextRun)
	}
}

func TestCreateJobRejectsInvalidCron(t *testing.T) {
	s := NewCronStore(filepath.Join(t.TempDir(), "cron.json"))
	_, err := s.CreateJob("chat-1", "bad", Schedule{Kind: ScheduleCron, Expression: "60 0 * * *"}, Payload{Kind: PayloadAgentTurn}, nil)
	if err == nil {
		t.Fatal("expected an error for an invalid cron expression")
	}
}

func TestDueJobsOnlyReturnsPastDue(t *testing.T) {
	s := NewCronStore(filepath.Join(t.TempDir(), "cron.json"))

	past := time.Now().Add(-time.Minute).UnixMilli()
	future := time.Now().Add(time.Hour).UnixMilli()

	dueJob, err := s.CreateJob("chat-1", "due", Schedule{Kind: ScheduleEvery, IntervalMs: int64(time.Hour / time.Millisecond), StartMs: &past}, Payload{Kind: PayloadAgentTurn}, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = s.CreateJob("chat-1", "not-due", Schedule{Kind: ScheduleAt, AtMs: future}, Payload{Kind: PayloadAgentTurn}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if dueJob.NextRun == nil {
		t.Fatal("expected a computed nextRun for the recurring job")
	}
	// A new job's nextRun is always strictly after its creation time, so
	// due-ness is checked at the recurring job's first occurrence
	// (start+1h), which is still before the one-shot job's instant.
	due, err := s.DueJobs(*dueJob.NextRun)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 1 || due[0].ID != dueJob.ID {
		t.Fatalf("expected exactly the due job, got %+v", due)
	}
}

func TestMarkExecutedAdvancesNextRunAndIncrementsRunCount(t *testing.T) {
	s := NewCronStore(filepath.Join(t.TempDir(), "cron.json"))

	start := time.Now().Add(-time.Minute).UnixMilli()
	interval := int64(time.Minute / time.Millisecond)
	job, err := s.CreateJob("chat-1", "recurring", Schedule{Kind: ScheduleEvery, IntervalMs: interval, StartMs: &start}, Payload{Kind: PayloadAgentTurn}, nil)
	if err != nil {
		t.Fatal(err)
	}

	executedAt := time.Now()
	if err := s.MarkExecuted(job.ID, executedAt); err != nil {
		t.Fatal(err)
	}

	jobs, err := s.ListJobs()
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	got := jobs[0]
	if got.RunCount != 1 {
		t.Fatalf("expected runCount 1, got %d", got.RunCount)
	}
	if got.LastRun == nil || !got.LastRun.Equal(executedAt) {
		t.Fatalf("expected lastRun %v, got %v", executedAt, got.LastRun)
	}
	if got.NextRun == nil || !got.NextRun.After(executedAt) {
		t.Fatalf("expected nextRun strictly after executedAt, got %v", got.NextRun)
	}
}

func TestMarkExecutedDisablesJobAtMaxRuns(t *testing.T) {
	s := NewCronStore(filepath.Join(t.TempDir(), "cron.json"))

	start := time.Now().Add(-time.Minute).UnixMilli()
	interval := int64(time.Minute / time.Millisecond)
	maxRuns := 1
	job, err := s.CreateJob("chat-1", "one-and-done", Schedule{Kind: ScheduleEvery, IntervalMs: interval, StartMs: &start}, Payload{Kind: PayloadAgentTurn}, &maxRuns)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.MarkExecuted(job.ID, time.Now()); err != nil {
		t.Fatal(err)
	}

	jobs, err := s.ListJobs()
	if err != nil {
		t.Fatal(err)
	}
	got := jobs[0]
	if got.Enabled {
		t.Fatal("expected job to be disabled after reaching maxRuns")
	}
	if got.NextRun != nil {
		t.Fatalf("expected nil nextRun after reaching maxRuns, got %v", got.NextRun)
	}
	if got.RunCount != 1 {
		t.Fatalf("expected runCount 1, got %d", got.RunCount)
	}
}

func TestRestoreDropsPastOneShotsAndAdvancesRecurring(t *testing.T) {
	s := NewCronStore(filepath.Join(t.TempDir(), "cron.json"))

	past := time.Now().Add(-time.Hour).UnixMilli()
	_, err := s.CreateJob("chat-1", "stale-one-shot", Schedule{Kind: ScheduleAt, AtMs: past}, Payload{Kind: PayloadAgentTurn}, nil)
	if err != nil {
		t.Fatal(err)
	}

	recurring, err := s.CreateJob("chat-1", "recurring", Schedule{Kind: ScheduleEvery, IntervalMs: int64(time.Hour / time.Millisecond), StartMs: &past}, Payload{Kind: PayloadAgentTurn}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Restore(time.Now()); err != nil {
		t.Fatal(err)
	}

	jobs, err := s.ListJobs()
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected the stale one-shot to be dropped, got %d jobs", len(jobs))
	}
	if jobs[0].ID != recurring.ID {
		t.Fatalf("expected the surviving job to be the recurring one, got %+v", jobs[0])
	}
	if jobs[0].NextRun == nil || !jobs[0].NextRun.After(time.Now()) {
		t.Fatalf("expected a future nextRun after restore, got %v", jobs[0].NextRun)
	}
}

func TestSetEnabledAndDeleteJob(t *testing.T) {
	s := NewCronStore(filepath.Join(t.TempDir(), "cron.json"))

	future := time.Now().Add(time.Hour).UnixMilli()
	job, err := s.CreateJob("chat-1", "toggle", Schedule{Kind: ScheduleAt, AtMs: future}, Payload{Kind: PayloadAgentTurn}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.SetEnabled(job.ID, false); err != nil {
		t.Fatal(err)
	}
	jobs, _ := s.ListJobs()
	if jobs[0].Enabled {
		t.Fatal("expected job to be disabled")
	}

	if err := s.DeleteJob(job.ID); err != nil {
		t.Fatal(err)
	}
	jobs, _ = s.ListJobs()
	if len(jobs) != 0 {
		t.Fatalf("expected job to be deleted, got %d jobs", len(jobs))
	}
}

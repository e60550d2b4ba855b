// Package workflow is the durable workflow runtime (C14): an alternate
// path through match → drift → reliability → rules, run as a sequence
// of retried, timed-out activities pulled off a named task queue rather
// than inline in the request handler. There is no external durable
// execution engine in this deployment's stack, so durability here is a
// Redis-backed queue plus retry/backoff bookkeeping the worker owns
// directly: a long-running worker loop that blocks on the queue for up
// to five seconds at a time and hands each job it pulls to its own
// goroutine.
package workflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/preflight/governor/internal/governance"
	"github.com/preflight/governor/internal/governance/drift"
	"github.com/preflight/governor/internal/governance/evaluate"
	"github.com/preflight/governor/internal/governance/matcher"
	"github.com/preflight/governor/internal/governance/reliability"
	"github.com/preflight/governor/internal/governance/rules"
	"github.com/preflight/governor/internal/store"
)

// TaskQueue is the named queue activities are dispatched on.
const TaskQueue = "preflight-tasks"

// RetryPolicy governs activity retry/backoff.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxAttempts     int
}

// DefaultRetryPolicy matches the durable-evaluation activities: start at
// 1s, cap at 10s, three attempts.
var DefaultRetryPolicy = RetryPolicy{
	InitialInterval: time.Second,
	MaxInterval:     10 * time.Second,
	MaxAttempts:     3,
}

// ActivityTimeout bounds a single activity attempt.
const ActivityTimeout = 30 * time.Second

// runActivity executes fn with per-attempt timeout and retry/backoff,
// matching DefaultRetryPolicy. It returns the last error if every
// attempt fails.
func runActivity(ctx context.Context, name string, policy RetryPolicy, fn func(context.Context) error) error {
	backoff := policy.InitialInterval
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, ActivityTimeout)
		err := fn(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == policy.MaxAttempts {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
		if backoff > policy.MaxInterval {
			backoff = policy.MaxInterval
		}
	}
	return fmt.Errorf("activity %q failed after %d attempts: %w", name, policy.MaxAttempts, lastErr)
}

// Job is a durable evaluation request serialized onto the task queue.
// Activity boundaries only ever see this immutable payload plus each
// other's declared outputs, never shared mutable state.
type Job struct {
	WorkflowID  uuid.UUID                     `json:"workflow_id"`
	TenantID    uuid.UUID                     `json:"tenant_id"`
	Fingerprint string                        `json:"fingerprint"`
	Features    governance.StructuralFeatures `json:"features"`
	Extractor   governance.ExtractorMetadata  `json:"extractor"`
	DocHash     string                        `json:"doc_hash"`
}

// JobResult is what running the activity chain for a Job produces.
type JobResult struct {
	WorkflowID        uuid.UUID                   `json:"workflow_id"`
	Decision          evaluate.Decision            `json:"decision"`
	TemplateVersionID *string                      `json:"template_version_id"`
	DriftScore        float64                      `json:"drift_score"`
	ReliabilityScore  float64                      `json:"reliability_score"`
	CorrectionRules   []governance.CorrectionRule  `json:"correction_rules"`
	ReplayHash        string                       `json:"replay_hash"`
}

// RunActivities executes the match → drift → reliability → rules chain
// for job, each step wrapped individually in runActivity so a
// transient failure in, say, the reliability step retries only that
// step. replay_hash here is derived from workflow_id rather than
// evaluation_id, since this path has no evaluation row yet when the
// hash is computed.
func RunActivities(ctx context.Context, lookup matcher.TemplateLookup, job Job) (JobResult, error) {
	var (
		matched    *governance.Template
		confidence float64
	)
	if err := runActivity(ctx, "match", DefaultRetryPolicy, func(ctx context.Context) error {
		t, conf, err := matcher.Match(ctx, lookup, job.Fingerprint, job.Features, nil)
		matched, confidence = t, conf
		return err
	}); err != nil {
		return JobResult{}, err
	}

	decision := decideFromConfidence(confidence, matched)

	var driftScore, reliabilityScore float64
	var correctionRules []governance.CorrectionRule
	var templateVersionID *string

	if decision != evaluate.DecisionNew {
		if err := runActivity(ctx, "drift", DefaultRetryPolicy, func(context.Context) error {
			driftScore = drift.Score(matched.StructuralFeatures, job.Features)
			return nil
		}); err != nil {
			return JobResult{}, err
		}

		if err := runActivity(ctx, "reliability", DefaultRetryPolicy, func(context.Context) error {
			reliabilityScore = reliability.Score(*matched, job.Extractor, driftScore)
			return nil
		}); err != nil {
			return JobResult{}, err
		}

		if err := runActivity(ctx, "rules", DefaultRetryPolicy, func(context.Context) error {
			correctionRules = rules.Select(*matched, reliabilityScore)
			return nil
		}); err != nil {
			return JobResult{}, err
		}

		v := matched.TemplateID + ":" + matched.Version
		templateVersionID = &v
	} else {
		correctionRules = []governance.CorrectionRule{}
	}

	replayHash := replayHashForWorkflow(job.WorkflowID.String(), job.DocHash, string(decision))

	return JobResult{
		WorkflowID:        job.WorkflowID,
		Decision:          decision,
		TemplateVersionID: templateVersionID,
		DriftScore:        driftScore,
		ReliabilityScore:  reliabilityScore,
		CorrectionRules:   correctionRules,
		ReplayHash:        replayHash,
	}, nil
}

func decideFromConfidence(confidence float64, t *governance.Template) evaluate.Decision {
	if t == nil || confidence < 0.50 {
		return evaluate.DecisionNew
	}
	if confidence < 0.85 {
		return evaluate.DecisionReview
	}
	return evaluate.DecisionMatch
}

func replayHashForWorkflow(workflowID, docHash, decision string) string {
	h := sha256.Sum256([]byte(workflowID + ":" + docHash + ":" + decision))
	return hex.EncodeToString(h[:])
}

// Worker pulls jobs off the Redis-backed task queue and runs the
// activity chain for each, publishing the result to a per-workflow
// result key for the caller (or an admin poller) to retrieve. It holds
// the store gateway rather than a single TemplateLookup: each job
// carries its own tenant, and a template lookup must run on a
// connection scoped to that tenant's row-level-security context, so
// the session is acquired fresh per job rather than shared across
// tenants.
type Worker struct {
	rdb    *redis.Client
	store  *store.Gateway
	logger *slog.Logger
	wg     sync.WaitGroup
}

func NewWorker(rdb *redis.Client, gw *store.Gateway, logger *slog.Logger) *Worker {
	return &Worker{rdb: rdb, store: gw, logger: logger}
}

// Enqueue pushes a job onto the task queue for a worker to pick up.
func Enqueue(ctx context.Context, rdb *redis.Client, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling workflow job: %w", err)
	}
	return rdb.LPush(ctx, TaskQueue, payload).Err()
}

// Run blocks, processing jobs until ctx is cancelled or SIGTERM/SIGINT
// is received, at which point it stops accepting new work and waits for
// in-flight jobs to finish before returning.
func (w *Worker) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	w.logger.Info("workflow worker started", "queue", TaskQueue)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("workflow worker draining in-flight jobs")
			w.wg.Wait()
			w.logger.Info("workflow worker stopped")
			return nil
		default:
		}

		result, err := w.rdb.BRPop(ctx, 5*time.Second, TaskQueue).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			w.logger.Error("polling task queue", "error", err)
			continue
		}
		if len(result) < 2 {
			continue
		}

		w.wg.Add(1)
		go func(payload string) {
			defer w.wg.Done()
			w.process(ctx, payload)
		}(result[1])
	}
}

func (w *Worker) process(ctx context.Context, payload string) {
	var job Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		w.logger.Error("decoding workflow job", "error", err)
		return
	}

	sess, err := w.store.WithTenant(ctx, job.TenantID)
	if err != nil {
		w.logger.Error("establishing tenant session for workflow job", "workflow_id", job.WorkflowID, "error", err)
		return
	}
	defer sess.Release()

	result, err := RunActivities(ctx, store.NewTemplateStore(sess), job)
	if err != nil {
		w.logger.Error("running workflow activities", "workflow_id", job.WorkflowID, "error", err)
		return
	}

	out, err := json.Marshal(result)
	if err != nil {
		w.logger.Error("encoding workflow result", "error", err)
		return
	}
	resultKey := "workflow:result:" + job.WorkflowID.String()
	if err := w.rdb.Set(ctx, resultKey, out, time.Hour).Err(); err != nil {
		w.logger.Error("storing workflow result", "error", err)
	}
}

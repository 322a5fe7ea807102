package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/redis/go-redis/v9"

	"github.com/clubrun/run-attendance/internal/bus"
	"github.com/clubrun/run-attendance/internal/model"
	"github.com/clubrun/run-attendance/internal/repository"
	"github.com/clubrun/run-attendance/internal/utils"
)

// RegisterStatus classifies the outcome of one check-in attempt.
type RegisterStatus int

const (
	// RegisterOK means the runner was recorded for the first time.
	RegisterOK RegisterStatus = iota
	// RegisterDuplicate means the runner was already recorded for this
	// run; the stored record is untouched.
	RegisterDuplicate
	// RegisterUnknownSession means no run matches the supplied session
	// code or token.
	RegisterUnknownSession
	// RegisterSessionClosed means the run exists but is not accepting
	// check-ins: it was deactivated or is not today's run.
	RegisterSessionClosed
	// RegisterExpiredToken means a well-formed QR token whose lifetime
	// has elapsed; the poster needs re-printing.
	RegisterExpiredToken
	// RegisterInvalidToken means the session field looked like a signed
	// QR token but failed verification: a tampered or foreign signature,
	// wrong claims, garbage.
	RegisterInvalidToken
	// RegisterInvalidInput means the runner identifier failed
	// validation or the session field was empty.
	RegisterInvalidInput
)

// RegisterResult is the outcome of one check-in attempt. Count carries
// the run's post-attempt tally for every outcome that resolved a run,
// so even a duplicate response can show the caller the current number.
type RegisterResult struct {
	Status RegisterStatus
	Run    *model.Run
	Count  int
}

// RegisterInput is one check-in request after HTTP decoding. Session
// holds either a bare session code or a signed QR token; RunnerID is
// the self-reported identifier; At is the client timestamp, zero when
// the client sent none.
type RegisterInput struct {
	Session  string
	RunnerID string
	At       time.Time
}

// RegistrationEngine performs check-ins. Correctness rests entirely on
// the attendances UNIQUE constraint; everything else here is
// classification, freshness events and an optional Redis fast path for
// repeated duplicate taps.
type RegistrationEngine struct {
	runs       *repository.RunRepo
	attendance *repository.AttendanceRepo
	events     bus.Bus
	calendar   *CalendarManager
	rdb        *redis.Client // nil disables the duplicate hint
	signingKey string
	maxRunner  int
}

// NewRegistrationEngine wires the registration service. rdb may be nil.
func NewRegistrationEngine(
	runs *repository.RunRepo,
	attendance *repository.AttendanceRepo,
	events bus.Bus,
	calendar *CalendarManager,
	rdb *redis.Client,
	signingKey string,
	maxRunnerLen int,
) *RegistrationEngine {
	return &RegistrationEngine{
		runs:       runs,
		attendance: attendance,
		events:     events,
		calendar:   calendar,
		rdb:        rdb,
		signingKey: signingKey,
		maxRunner:  maxRunnerLen,
	}
}

// hintTTL bounds the duplicate-hint keys. A hint only ever confirms
// what the database already recorded, so expiry is a performance knob,
// not a correctness one.
const hintTTL = 26 * time.Hour

func hintKey(runID uint64, runnerID string) string {
	return fmt.Sprintf("attend:%d:%s", runID, runnerID)
}

// Register performs one check-in attempt. The insert and the tally read
// share a transaction; tally events are published strictly after
// commit, so subscribers never see a count the database could still
// roll back.
func (e *RegistrationEngine) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	runnerID := strings.TrimSpace(in.RunnerID)
	if runnerID == "" || utf8.RuneCountInString(runnerID) > e.maxRunner {
		return RegisterResult{Status: RegisterInvalidInput}, nil
	}

	code, status := e.resolveSession(in.Session)
	if status != RegisterOK {
		return RegisterResult{Status: status}, nil
	}

	// Fast path: a runner re-scanning the poster hits Redis instead of
	// the insert path. Only ever set after the database confirmed the
	// pair, so a hit is always truthful; a miss falls through.
	if e.rdb != nil {
		if run, ok := e.duplicateHint(ctx, code, runnerID); ok {
			count, err := e.attendance.CountForRun(ctx, run.ID)
			if err != nil {
				return RegisterResult{}, err
			}
			return RegisterResult{Status: RegisterDuplicate, Run: run, Count: count}, nil
		}
	}

	ts := in.At
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	tx, err := e.attendance.DB().BeginTx(ctx, nil)
	if err != nil {
		return RegisterResult{}, repository.Retryable(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	run, err := e.runs.GetByCodeTx(ctx, tx, code)
	if errors.Is(err, repository.ErrRunNotFound) {
		return RegisterResult{Status: RegisterUnknownSession}, nil
	}
	if err != nil {
		return RegisterResult{}, err
	}
	if !run.IsActive || run.DateString() != e.calendar.Today() {
		count, err := e.attendance.CountForRunTx(ctx, tx, run.ID)
		if err != nil {
			return RegisterResult{}, err
		}
		return RegisterResult{Status: RegisterSessionClosed, Run: run, Count: count}, nil
	}

	count, duplicate, err := e.attendance.RegisterTx(ctx, tx, run.ID, runnerID, ts)
	if err != nil {
		return RegisterResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return RegisterResult{}, repository.Retryable(err)
	}
	committed = true

	if e.rdb != nil {
		if err := e.rdb.Set(ctx, hintKey(run.ID, runnerID), 1, hintTTL).Err(); err != nil {
			log.Printf("registration: duplicate hint write failed: %v", err)
		}
	}

	if duplicate {
		return RegisterResult{Status: RegisterDuplicate, Run: run, Count: count}, nil
	}

	e.events.Publish(bus.TopicTally, bus.Event{
		Type:        bus.TypeTallyUpdate,
		RunID:       run.ID,
		SessionCode: run.SessionCode,
		Count:       count,
	})
	e.events.Publish(bus.TopicTally, bus.Event{
		Type:        bus.TypeRegistration,
		RunID:       run.ID,
		SessionCode: run.SessionCode,
		Count:       count,
		RunnerName:  runnerID,
	})
	return RegisterResult{Status: RegisterOK, Run: run, Count: count}, nil
}

// resolveSession maps the request's session field to a session code.
// Signed QR tokens carry two dots; everything else is treated as a bare
// code.
func (e *RegistrationEngine) resolveSession(session string) (string, RegisterStatus) {
	session = strings.TrimSpace(session)
	if session == "" {
		return "", RegisterInvalidInput
	}
	if strings.Count(session, ".") != 2 {
		return strings.ToUpper(session), RegisterOK
	}
	code, err := utils.VerifyQRToken(e.signingKey, session)
	if errors.Is(err, utils.ErrTokenExpired) {
		return "", RegisterExpiredToken
	}
	if err != nil {
		return "", RegisterInvalidToken
	}
	return code, RegisterOK
}

// duplicateHint checks the Redis fast path. It returns the run only
// when the hint key exists and the code still resolves to an active
// run for today; any Redis or lookup error just disables the shortcut.
func (e *RegistrationEngine) duplicateHint(ctx context.Context, code, runnerID string) (*model.Run, bool) {
	run, err := e.runs.GetByCode(ctx, code)
	if err != nil {
		return nil, false
	}
	if !run.IsActive || run.DateString() != e.calendar.Today() {
		return nil, false
	}
	n, err := e.rdb.Exists(ctx, hintKey(run.ID, runnerID)).Result()
	if err != nil || n == 0 {
		return nil, false
	}
	return run, true
}

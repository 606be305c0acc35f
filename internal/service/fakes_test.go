package service

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"automation-scheduler/internal/dto"
	"automation-scheduler/internal/model"
	"automation-scheduler/internal/strategy"
	"automation-scheduler/pkg/errors"
	"automation-scheduler/pkg/utils"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeScheduleRepo struct {
	mu        sync.Mutex
	schedules map[uint]*model.Schedule
	nextID    uint
}

func newFakeScheduleRepo(schedules ...model.Schedule) *fakeScheduleRepo {
	r := &fakeScheduleRepo{schedules: make(map[uint]*model.Schedule)}
	for i := range schedules {
		s := schedules[i]
		if s.ID == 0 {
			r.nextID++
			s.ID = r.nextID
		} else if s.ID > r.nextID {
			r.nextID = s.ID
		}
		r.schedules[s.ID] = &s
	}
	return r
}

func (r *fakeScheduleRepo) get(id uint) model.Schedule {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.schedules[id]
}

func (r *fakeScheduleRepo) FindDueSchedules(_ context.Context, now time.Time, limit int, _ ...utils.DBOption) ([]model.Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []model.Schedule
	for _, s := range r.schedules {
		if s.IsEnabled && s.NextRunTime.Valid && !s.NextRunTime.Time.After(now) {
			due = append(due, *s)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *fakeScheduleRepo) FindByID(_ context.Context, id uint, _ ...utils.DBOption) (*model.Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schedules[id]
	if !ok {
		return nil, errors.Mark(errors.Newf("schedule %d not found", id), errors.ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (r *fakeScheduleRepo) Get(_ context.Context, param *model.GetScheduleParam, _ ...utils.DBOption) ([]model.Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Schedule
	for _, s := range r.schedules {
		if param != nil && param.IsEnabled != nil && s.IsEnabled != *param.IsEnabled {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeScheduleRepo) Create(_ context.Context, schedule *model.Schedule, _ ...utils.DBOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	schedule.ID = r.nextID
	cp := *schedule
	r.schedules[cp.ID] = &cp
	return nil
}

func (r *fakeScheduleRepo) Update(_ context.Context, schedule *model.Schedule, _ ...utils.DBOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.schedules[schedule.ID]; !ok {
		return errors.Mark(errors.Newf("schedule %d not found", schedule.ID), errors.ErrNotFound)
	}
	cp := *schedule
	r.schedules[cp.ID] = &cp
	return nil
}

func (r *fakeScheduleRepo) UpdateTiming(_ context.Context, id uint, timing model.ScheduleTiming, _ ...utils.DBOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schedules[id]
	if !ok {
		return nil
	}
	s.NextRunTime = timing.NextRunTime
	s.LastRunTime = timing.LastRunTime
	s.CurrentRetryCount = timing.CurrentRetryCount
	return nil
}

func (r *fakeScheduleRepo) Delete(_ context.Context, id uint, _ ...utils.DBOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.schedules, id)
	return nil
}

type fakeJobExecRepo struct {
	mu         sync.Mutex
	executions map[uint]*model.JobExecution
	nextID     uint
}

func newFakeJobExecRepo() *fakeJobExecRepo {
	return &fakeJobExecRepo{executions: make(map[uint]*model.JobExecution)}
}

func (r *fakeJobExecRepo) all() []model.JobExecution {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.JobExecution, 0, len(r.executions))
	for _, e := range r.executions {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *fakeJobExecRepo) Create(_ context.Context, execution *model.JobExecution, _ ...utils.DBOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if execution.Status == model.ExecutionStatusRunning {
		for _, e := range r.executions {
			if e.ScheduleID == execution.ScheduleID && e.Status == model.ExecutionStatusRunning {
				return errors.New("duplicate running execution")
			}
		}
	}
	r.nextID++
	execution.ID = r.nextID
	cp := *execution
	r.executions[cp.ID] = &cp
	return nil
}

func (r *fakeJobExecRepo) Finish(_ context.Context, execution *model.JobExecution, _ ...utils.DBOption) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.executions[execution.ID]
	if !ok || current.Status != model.ExecutionStatusRunning {
		return false, nil
	}
	cp := *execution
	r.executions[cp.ID] = &cp
	return true, nil
}

func (r *fakeJobExecRepo) FindByID(_ context.Context, id uint, _ ...utils.DBOption) (*model.JobExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.executions[id]
	if !ok {
		return nil, errors.Mark(errors.Newf("job execution %d not found", id), errors.ErrNotFound)
	}
	cp := *e
	return &cp, nil
}

func (r *fakeJobExecRepo) FindRunningBySchedule(_ context.Context, scheduleID uint, _ ...utils.DBOption) (*model.JobExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.executions {
		if e.ScheduleID == scheduleID && e.Status == model.ExecutionStatusRunning {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeJobExecRepo) FindRunning(_ context.Context, _ ...utils.DBOption) ([]model.JobExecution, error) {
	var out []model.JobExecution
	for _, e := range r.all() {
		if e.Status == model.ExecutionStatusRunning {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeJobExecRepo) Get(_ context.Context, param *model.GetJobExecutionParam, _ ...utils.DBOption) ([]model.JobExecution, error) {
	var out []model.JobExecution
	for _, e := range r.all() {
		if param != nil && param.ScheduleID != nil && e.ScheduleID != *param.ScheduleID {
			continue
		}
		if param != nil && param.Status != nil && e.Status != *param.Status {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *fakeJobExecRepo) DeleteOlderThan(_ context.Context, date time.Time, _ ...utils.DBOption) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for id, e := range r.executions {
		if e.Status.IsTerminal() && e.StartTime.Before(date) {
			delete(r.executions, id)
			deleted++
		}
	}
	return deleted, nil
}

type fakeParamRepo struct {
	mu     sync.Mutex
	params map[uint][]model.JobParameter
}

func newFakeParamRepo() *fakeParamRepo {
	return &fakeParamRepo{params: make(map[uint][]model.JobParameter)}
}

func (r *fakeParamRepo) FindBySchedule(_ context.Context, scheduleID uint, _ ...utils.DBOption) ([]model.JobParameter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.JobParameter(nil), r.params[scheduleID]...), nil
}

func (r *fakeParamRepo) ReplaceForSchedule(_ context.Context, scheduleID uint, params []model.JobParameter, _ ...utils.DBOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := make([]model.JobParameter, len(params))
	for i, p := range params {
		p.ScheduleID = scheduleID
		stored[i] = p
	}
	r.params[scheduleID] = stored
	return nil
}

type fakeUnitOfWork struct{}

func (fakeUnitOfWork) Run(_ context.Context, fn func(opts ...utils.DBOption) error) error {
	return fn()
}

// fakeStrategy runs fn, or succeeds when fn is nil.
type fakeStrategy struct {
	jobType model.JobType
	mu      sync.Mutex
	calls   int
	fn      func(ctx context.Context, req strategy.ExecutionRequest) (strategy.JobResult, error)
}

func (f *fakeStrategy) Execute(ctx context.Context, req strategy.ExecutionRequest) (strategy.JobResult, error) {
	f.mu.Lock()
	f.calls++
	fn := f.fn
	f.mu.Unlock()
	if fn == nil {
		return strategy.JobResult{Success: true, Output: "ok"}, nil
	}
	return fn(ctx, req)
}

func (f *fakeStrategy) Validate(configuration json.RawMessage) error {
	if !json.Valid(configuration) {
		return errors.Mark(errors.New("configuration is not valid json"), errors.ErrScheduleConfiguration)
	}
	return nil
}

func (f *fakeStrategy) GetType() model.JobType {
	return f.jobType
}

func (f *fakeStrategy) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type staticResolver struct {
	values map[string]string
	err    error
}

func (r staticResolver) Resolve(context.Context, uint) (map[string]string, error) {
	return r.values, r.err
}

type recordingNotifier struct {
	mu         sync.Mutex
	executions []model.JobExecution
	runs       []model.AdrOrchestrationRun
}

func (n *recordingNotifier) SendJobExecutionNotification(_ context.Context, _ model.Schedule, execution model.JobExecution, _ *time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.executions = append(n.executions, execution)
	return nil
}

func (n *recordingNotifier) SendOrchestrationSummary(_ context.Context, run model.AdrOrchestrationRun) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.runs = append(n.runs, run)
	return nil
}

func (n *recordingNotifier) jobNotifications() []model.JobExecution {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.JobExecution(nil), n.executions...)
}

func (n *recordingNotifier) summaries() []model.AdrOrchestrationRun {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.AdrOrchestrationRun(nil), n.runs...)
}

type fakeAdrAccountRepo struct {
	mu       sync.Mutex
	accounts map[uint]*model.AdrAccount
	nextID   uint
}

func newFakeAdrAccountRepo(accounts ...model.AdrAccount) *fakeAdrAccountRepo {
	r := &fakeAdrAccountRepo{accounts: make(map[uint]*model.AdrAccount)}
	for i := range accounts {
		a := accounts[i]
		_ = r.Save(context.Background(), &a)
	}
	return r
}

func (r *fakeAdrAccountRepo) get(id uint) model.AdrAccount {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.accounts[id]
}

func (r *fakeAdrAccountRepo) byExternalID(externalID string) (model.AdrAccount, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.ExternalAccountID == externalID {
			return *a, true
		}
	}
	return model.AdrAccount{}, false
}

func (r *fakeAdrAccountRepo) Get(_ context.Context, param *model.GetAdrAccountParam, _ ...utils.DBOption) ([]model.AdrAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.AdrAccount
	for _, a := range r.accounts {
		if param != nil {
			if len(param.ExternalAccountIDs) > 0 && !utils.ContainsString(param.ExternalAccountIDs, a.ExternalAccountID) {
				continue
			}
			if param.IsActive != nil && a.IsActive != *param.IsActive {
				continue
			}
			if param.IsMissing != nil && a.IsMissing != *param.IsMissing {
				continue
			}
			if param.CredentialCheckDue != nil && (a.CredentialCheckDate == nil || a.CredentialCheckDate.After(*param.CredentialCheckDue)) {
				continue
			}
			if param.NextRangeEndOnAfter != nil && (a.NextRangeEnd == nil || a.NextRangeEnd.Before(*param.NextRangeEndOnAfter)) {
				continue
			}
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeAdrAccountRepo) FindByID(_ context.Context, id uint, _ ...utils.DBOption) (*model.AdrAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, errors.Mark(errors.Newf("adr account %d not found", id), errors.ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (r *fakeAdrAccountRepo) Save(_ context.Context, account *model.AdrAccount, _ ...utils.DBOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if account.ID == 0 {
		r.nextID++
		account.ID = r.nextID
	} else if account.ID > r.nextID {
		r.nextID = account.ID
	}
	cp := *account
	cp.InvoiceHistory = append(cp.InvoiceHistory[:0:0], account.InvoiceHistory...)
	r.accounts[cp.ID] = &cp
	return nil
}

func (r *fakeAdrAccountRepo) DeactivateMissing(_ context.Context, presentExternalIDs []string, now time.Time, _ ...utils.DBOption) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, a := range r.accounts {
		if a.IsActive && !utils.ContainsString(presentExternalIDs, a.ExternalAccountID) {
			a.IsActive = false
			a.LastSyncedAt = utils.ToPointer(now)
			n++
		}
	}
	return n, nil
}

type fakeAdrJobRepo struct {
	mu       sync.Mutex
	jobs     map[uint]*model.AdrJob
	nextID   uint
	accounts *fakeAdrAccountRepo
}

func newFakeAdrJobRepo(accounts *fakeAdrAccountRepo) *fakeAdrJobRepo {
	return &fakeAdrJobRepo{jobs: make(map[uint]*model.AdrJob), accounts: accounts}
}

func (r *fakeAdrJobRepo) get(id uint) model.AdrJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.jobs[id]
}

func (r *fakeAdrJobRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

func (r *fakeAdrJobRepo) Get(ctx context.Context, param *model.GetAdrJobParam, _ ...utils.DBOption) ([]model.AdrJob, error) {
	r.mu.Lock()
	var out []model.AdrJob
	for _, j := range r.jobs {
		if param != nil {
			if len(param.Statuses) > 0 && !containsStatus(param.Statuses, j.Status) {
				continue
			}
			if param.AdrAccountID != nil && j.AdrAccountID != *param.AdrAccountID {
				continue
			}
			if param.PeriodEndBefore != nil && !j.BillingPeriodEnd.Before(*param.PeriodEndBefore) {
				continue
			}
		}
		out = append(out, *j)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if param != nil && param.WithAccount && r.accounts != nil {
		for i := range out {
			if a, err := r.accounts.FindByID(ctx, out[i].AdrAccountID); err == nil {
				out[i].Account = a
			}
		}
	}
	return out, nil
}

func containsStatus(statuses []model.AdrJobStatus, s model.AdrJobStatus) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

func (r *fakeAdrJobRepo) FindByID(_ context.Context, id uint, _ ...utils.DBOption) (*model.AdrJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, errors.Mark(errors.Newf("adr job %d not found", id), errors.ErrNotFound)
	}
	cp := *j
	return &cp, nil
}

func (r *fakeAdrJobRepo) FindByAccountPeriod(_ context.Context, accountID uint, start, end time.Time, _ ...utils.DBOption) (*model.AdrJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.AdrAccountID == accountID && j.BillingPeriodStart.Equal(start) && j.BillingPeriodEnd.Equal(end) {
			cp := *j
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeAdrJobRepo) Create(_ context.Context, job *model.AdrJob, _ ...utils.DBOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	job.ID = r.nextID
	cp := *job
	cp.Account = nil
	r.jobs[cp.ID] = &cp
	return nil
}

func (r *fakeAdrJobRepo) Update(_ context.Context, job *model.AdrJob, _ ...utils.DBOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	cp.Account = nil
	r.jobs[cp.ID] = &cp
	return nil
}

type fakeAdrJobExecRepo struct {
	mu         sync.Mutex
	executions []model.AdrJobExecution
}

func (r *fakeAdrJobExecRepo) Create(_ context.Context, execution *model.AdrJobExecution, _ ...utils.DBOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	execution.ID = uint(len(r.executions) + 1)
	r.executions = append(r.executions, *execution)
	return nil
}

func (r *fakeAdrJobExecRepo) FindByJob(_ context.Context, jobID uint, _ ...utils.DBOption) ([]model.AdrJobExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.AdrJobExecution
	for _, e := range r.executions {
		if e.AdrJobID == jobID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeAdrRunRepo struct {
	mu   sync.Mutex
	runs []model.AdrOrchestrationRun
}

func (r *fakeAdrRunRepo) Create(_ context.Context, run *model.AdrOrchestrationRun, _ ...utils.DBOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run.ID = uint(len(r.runs) + 1)
	r.runs = append(r.runs, *run)
	return nil
}

func (r *fakeAdrRunRepo) Update(_ context.Context, run *model.AdrOrchestrationRun, _ ...utils.DBOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.runs {
		if r.runs[i].RequestID == run.RequestID {
			r.runs[i] = *run
			return nil
		}
	}
	return errors.Newf("run %s not found", run.RequestID)
}

func (r *fakeAdrRunRepo) FindByRequestID(_ context.Context, requestID string, _ ...utils.DBOption) (*model.AdrOrchestrationRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, run := range r.runs {
		if run.RequestID == requestID {
			cp := run
			return &cp, nil
		}
	}
	return nil, errors.Mark(errors.Newf("orchestration run %s not found", requestID), errors.ErrNotFound)
}

func (r *fakeAdrRunRepo) List(_ context.Context, limit int, _ ...utils.DBOption) ([]model.AdrOrchestrationRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.AdrOrchestrationRun, 0, len(r.runs))
	for i := len(r.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.runs[i])
	}
	return out, nil
}

func (r *fakeAdrRunRepo) FailRunning(_ context.Context, message string, now time.Time, _ ...utils.DBOption) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for i := range r.runs {
		if r.runs[i].Status == model.OrchestrationStatusRunning {
			r.runs[i].Status = model.OrchestrationStatusFailed
			r.runs[i].ErrorMessage = message
			r.runs[i].CompletedAt = utils.ToPointer(now)
			n++
		}
	}
	return n, nil
}

// fakeVendor answers status checks from statuses keyed by job id.
type fakeVendor struct {
	mu       sync.Mutex
	sent     []uint
	sendErr  error
	statuses map[uint]dto.AdrStatusResult
	release  chan struct{}
}

func (v *fakeVendor) SendRequest(ctx context.Context, job model.AdrJob, _ model.AdrAccount) (*dto.AdrVendorCall, error) {
	if v.release != nil {
		select {
		case <-v.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sent = append(v.sent, job.ID)
	call := &dto.AdrVendorCall{HTTPStatusCode: 202, StartedAt: time.Now(), CompletedAt: time.Now()}
	if v.sendErr != nil {
		call.HTTPStatusCode = 500
		return call, v.sendErr
	}
	return call, nil
}

func (v *fakeVendor) CheckStatus(_ context.Context, job model.AdrJob, _ model.AdrAccount) (*dto.AdrStatusResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	res, ok := v.statuses[job.ID]
	if !ok {
		res = dto.AdrStatusResult{Status: dto.VendorStatusPending}
	}
	res.HTTPStatusCode = 200
	return &res, nil
}

func (v *fakeVendor) sentJobs() []uint {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]uint(nil), v.sent...)
}

type fakeCredentials struct {
	mu    sync.Mutex
	valid map[string]bool
	calls int
}

func (c *fakeCredentials) VerifyCredentials(_ context.Context, credentialID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.valid[credentialID], nil
}

type fakeAccountSource struct {
	rows []dto.AdrAccountSourceRow
	err  error
}

func (s fakeAccountSource) FetchAccounts(context.Context) ([]dto.AdrAccountSourceRow, error) {
	return s.rows, s.err
}

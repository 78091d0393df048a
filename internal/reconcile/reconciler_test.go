package reconcile

import (
	"context"
	"errors"
	"fmt"
	"net/rpc"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isometry/papercut-seeder/internal/identity"
	"github.com/isometry/papercut-seeder/internal/metrics"
	"github.com/isometry/papercut-seeder/internal/pagination"
	"github.com/isometry/papercut-seeder/internal/papercut"
	"github.com/isometry/papercut-seeder/internal/retry"
)

// fakeDirectory is an in-memory remote directory that rejects duplicate
// logins the way the real server does.
type fakeDirectory struct {
	accounts []string
	exists   map[string]bool

	listCalls   int
	createCalls []string
	batches     map[string]papercut.PropertyBatch
	batchOrder  []string

	listErr   func(call int) error
	createErr func(call int, login string) error
	setErr    func(login string) error
}

func newFakeDirectory(existing ...string) *fakeDirectory {
	d := &fakeDirectory{
		exists:  map[string]bool{},
		batches: map[string]papercut.PropertyBatch{},
	}
	for _, login := range existing {
		d.accounts = append(d.accounts, login)
		d.exists[login] = true
	}
	return d
}

func (d *fakeDirectory) ListAccounts(_ context.Context, w pagination.Window) ([]string, error) {
	d.listCalls++
	if d.listErr != nil {
		if err := d.listErr(d.listCalls); err != nil {
			return nil, err
		}
	}
	if w.Offset >= len(d.accounts) {
		return nil, nil
	}
	end := min(w.Offset+w.Limit, len(d.accounts))
	return append([]string(nil), d.accounts[w.Offset:end]...), nil
}

func (d *fakeDirectory) ListPrinters(context.Context, pagination.Window) ([]string, error) {
	return nil, nil
}

func (d *fakeDirectory) ListSharedAccounts(context.Context, pagination.Window) ([]string, error) {
	return nil, nil
}

func (d *fakeDirectory) CreateAccount(_ context.Context, login string) error {
	d.createCalls = append(d.createCalls, login)
	if d.createErr != nil {
		if err := d.createErr(len(d.createCalls), login); err != nil {
			return err
		}
	}
	if d.exists[login] {
		return papercut.NewAPIError("create_account", rpc.ServerError("Fault(1): User already exists: "+login))
	}
	d.exists[login] = true
	d.accounts = append(d.accounts, login)
	return nil
}

func (d *fakeDirectory) SetAccountProperties(_ context.Context, login string, batch papercut.PropertyBatch) error {
	if d.setErr != nil {
		if err := d.setErr(login); err != nil {
			return err
		}
	}
	d.batches[login] = batch
	d.batchOrder = append(d.batchOrder, login)
	return nil
}

func (d *fakeDirectory) SubmitJobRecord(context.Context, string) error {
	return nil
}

func (d *fakeDirectory) mutations() int {
	return len(d.createCalls) + len(d.batchOrder)
}

// scriptedGenerator returns identities with predetermined logins.
type scriptedGenerator struct {
	logins []string
	next   int
	pools  int
}

func sequentialLogins(n int) []string {
	logins := make([]string, n)
	for i := range logins {
		logins[i] = fmt.Sprintf("seed-user-%03d", i+1)
	}
	return logins
}

func (g *scriptedGenerator) NewPools() identity.Pools {
	g.pools++
	return identity.Pools{
		Departments: []string{"department a"},
		Offices:     []string{"office a"},
	}
}

func (g *scriptedGenerator) Generate(pools identity.Pools) identity.AccountIdentity {
	login := g.logins[g.next%len(g.logins)]
	g.next++
	return identity.AccountIdentity{
		Login:         login,
		FirstName:     "Test",
		LastName:      "User",
		FullName:      "Test User",
		PrimaryCard:   "abcd1234",
		SecondaryCard: "efgh5678",
		Email:         login + "@example.com",
		Alias:         login + "-alias",
		Notes:         "notes",
		Office:        pools.Offices[0],
		Department:    pools.Departments[0],
		Home:          "/home/users/" + login,
		PIN:           "0042",
	}
}

var fixedPropertyOrder = []string{
	"primary-card-number",
	"secondary-card-number",
	"department",
	"email",
	"full-name",
	"username-alias",
	"notes",
	"office",
	"restricted",
	"home",
	"card-pin",
}

func newReconciler(t *testing.T, dir papercut.Directory, gen Generator, opts Options) *Reconciler {
	t.Helper()
	if opts.PageSize == 0 {
		opts.PageSize = 7
	}
	r, err := New(dir, gen, opts)
	require.NoError(t, err)
	return r
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, &scriptedGenerator{}, Options{})
	assert.Error(t, err)

	_, err = New(newFakeDirectory(), nil, Options{})
	assert.Error(t, err)

	_, err = New(newFakeDirectory(), &scriptedGenerator{}, Options{OnFailure: "ignore"})
	assert.Error(t, err)
}

func TestReconcile_NoopWhenPopulationSatisfiesTarget(t *testing.T) {
	for _, target := range []int{0, 5, 12} {
		t.Run(fmt.Sprintf("target=%d", target), func(t *testing.T) {
			dir := newFakeDirectory(sequentialLogins(12)...)
			gen := &scriptedGenerator{logins: []string{"unused"}}

			result, err := newReconciler(t, dir, gen, Options{}).Reconcile(t.Context(), Target{Count: target})

			require.NoError(t, err)
			assert.True(t, result.Noop())
			assert.Equal(t, sequentialLogins(12), result.Accounts)
			assert.Zero(t, dir.mutations())
			assert.Zero(t, gen.pools, "no pools drawn for a no-op pass")
			assert.NotEmpty(t, result.RunID)
		})
	}
}

func TestReconcile_ConvergesFromEmpty(t *testing.T) {
	dir := newFakeDirectory()
	gen := &scriptedGenerator{logins: sequentialLogins(50)}

	result, err := newReconciler(t, dir, gen, Options{}).Reconcile(t.Context(), Target{Count: 50})

	require.NoError(t, err)
	assert.Equal(t, 0, result.Initial)
	assert.Equal(t, 50, result.Deficit)
	assert.Equal(t, 50, result.Created)
	assert.Len(t, dir.createCalls, 50)
	assert.Len(t, dir.batchOrder, 50)
	assert.Equal(t, 1, gen.pools, "pools drawn once per pass")

	for _, login := range dir.batchOrder {
		assert.Equal(t, fixedPropertyOrder, dir.batches[login].Names(), login)
	}

	assert.Equal(t, sequentialLogins(50), result.Accounts, "final list is re-enumerated")
}

func TestReconcile_CreatesOnlyTheDeficit(t *testing.T) {
	dir := newFakeDirectory("alice", "bob", "carol")
	gen := &scriptedGenerator{logins: sequentialLogins(10)}

	result, err := newReconciler(t, dir, gen, Options{}).Reconcile(t.Context(), Target{Count: 8})

	require.NoError(t, err)
	assert.Equal(t, 3, result.Initial)
	assert.Equal(t, 5, result.Deficit)
	assert.Len(t, dir.createCalls, 5)
	assert.Len(t, result.Accounts, 8)
}

func TestReconcile_PartialFailureContinues(t *testing.T) {
	dir := newFakeDirectory()
	gen := &scriptedGenerator{logins: []string{"u1", "u2", "u1", "u4", "u5"}}
	rec := metrics.NewRecorder()

	result, err := newReconciler(t, dir, gen, Options{Metrics: rec}).Reconcile(t.Context(), Target{Count: 5})

	require.Error(t, err)
	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	require.Len(t, agg.Failures, 1)
	assert.Equal(t, "u1", agg.Failures[0].Login)
	assert.Equal(t, StageCreate, agg.Failures[0].Stage)
	assert.True(t, papercut.IsConflictError(agg.Failures[0].Err))

	assert.Equal(t, []string{"u1", "u2", "u1", "u4", "u5"}, dir.createCalls)
	assert.Equal(t, []string{"u1", "u2", "u4", "u5"}, dir.batchOrder, "logins 4 and 5 still provisioned")
	assert.Equal(t, 4, result.Created)
	assert.Equal(t, []string{"u1", "u2", "u4", "u5"}, result.Accounts, "best-effort population is returned")

	expected := `
# HELP papercut_seeder_reconcile_accounts_created_total Total number of synthetic accounts created
# TYPE papercut_seeder_reconcile_accounts_created_total counter
papercut_seeder_reconcile_accounts_created_total 4
# HELP papercut_seeder_reconcile_identity_failures_total Total number of per-identity failures by stage
# TYPE papercut_seeder_reconcile_identity_failures_total counter
papercut_seeder_reconcile_identity_failures_total{stage="create"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(rec.Registry(), strings.NewReader(expected),
		"papercut_seeder_reconcile_accounts_created_total",
		"papercut_seeder_reconcile_identity_failures_total",
	))
}

func TestReconcile_SetPropertiesFailureIsAggregated(t *testing.T) {
	dir := newFakeDirectory()
	dir.setErr = func(login string) error {
		if login == "seed-user-002" {
			return papercut.NewAPIError("set_properties", rpc.ServerError("Fault(2): Invalid value for card-pin"))
		}
		return nil
	}
	gen := &scriptedGenerator{logins: sequentialLogins(3)}

	result, err := newReconciler(t, dir, gen, Options{}).Reconcile(t.Context(), Target{Count: 3})

	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	require.Len(t, agg.Failures, 1)
	assert.Equal(t, StageSetProperties, agg.Failures[0].Stage)
	assert.Equal(t, 3, result.Created)
	assert.Len(t, result.Accounts, 3)
}

func TestReconcile_EnumerationFailureAborts(t *testing.T) {
	dir := newFakeDirectory()
	boom := errors.New("listing unavailable")
	dir.listErr = func(int) error { return boom }

	result, err := newReconciler(t, dir, &scriptedGenerator{logins: []string{"x"}}, Options{}).
		Reconcile(t.Context(), Target{Count: 10})

	require.ErrorIs(t, err, boom)
	assert.Nil(t, result.Accounts)
	assert.Zero(t, dir.mutations(), "no creation without a measured population")
}

func TestReconcile_EnumerationFailureTreatedAsEmpty(t *testing.T) {
	dir := newFakeDirectory("existing")
	dir.listErr = func(call int) error {
		if call == 1 {
			return errors.New("listing unavailable")
		}
		return nil
	}
	gen := &scriptedGenerator{logins: sequentialLogins(3)}

	result, err := newReconciler(t, dir, gen, Options{OnFailure: EnumerationTreatAsEmpty}).
		Reconcile(t.Context(), Target{Count: 3})

	require.NoError(t, err)
	assert.Equal(t, 0, result.Initial)
	assert.Len(t, dir.createCalls, 3)
	assert.Len(t, result.Accounts, 4, "final enumeration reflects the real remote state")
}

func TestReconcile_TreatAsEmptyStillHonoursCancellation(t *testing.T) {
	dir := newFakeDirectory()
	dir.listErr = func(int) error {
		return &retry.CancelledError{Operation: "list_accounts", Cause: context.Canceled}
	}

	_, err := newReconciler(t, dir, &scriptedGenerator{logins: []string{"x"}}, Options{OnFailure: EnumerationTreatAsEmpty}).
		Reconcile(t.Context(), Target{Count: 3})

	require.ErrorIs(t, err, retry.ErrCancelled)
	assert.Zero(t, dir.mutations())
}

func TestReconcile_TreatAsEmptyStillHonoursRetriesExhausted(t *testing.T) {
	dir := newFakeDirectory()
	dir.listErr = func(int) error {
		return &retry.RetriesExhaustedError{Operation: "list_accounts", Attempts: 3, Last: errors.New("connection reset")}
	}

	result, err := newReconciler(t, dir, &scriptedGenerator{logins: []string{"x"}}, Options{OnFailure: EnumerationTreatAsEmpty}).
		Reconcile(t.Context(), Target{Count: 3})

	require.ErrorIs(t, err, retry.ErrRetriesExhausted)
	assert.Nil(t, result.Accounts)
	assert.Zero(t, dir.mutations(), "exhausted retries are never mistaken for an empty directory")
}

// cyclingDirectory ignores the requested offset and alternates between two
// distinct full pages forever.
type cyclingDirectory struct {
	*fakeDirectory
}

func (d cyclingDirectory) ListAccounts(_ context.Context, w pagination.Window) ([]string, error) {
	d.listCalls++
	page := make([]string, w.Limit)
	for i := range page {
		page[i] = fmt.Sprintf("cycle-%d-%d", d.listCalls%2, i)
	}
	return page, nil
}

func TestReconcile_RunawayPaginationAborts(t *testing.T) {
	dir := cyclingDirectory{newFakeDirectory()}

	_, err := newReconciler(t, dir, &scriptedGenerator{logins: []string{"x"}}, Options{PageSize: 2, MaxPages: 5}).
		Reconcile(t.Context(), Target{Count: 3})

	require.ErrorIs(t, err, pagination.ErrProtocolViolation)
	assert.Equal(t, 5, dir.listCalls, "enumeration stops at the page limit")
	assert.Zero(t, dir.mutations())
}

func TestReconcile_RunawayPaginationIsNotTreatedAsEmpty(t *testing.T) {
	dir := cyclingDirectory{newFakeDirectory()}

	_, err := newReconciler(t, dir, &scriptedGenerator{logins: []string{"x"}},
		Options{PageSize: 2, MaxPages: 3, OnFailure: EnumerationTreatAsEmpty}).
		Reconcile(t.Context(), Target{Count: 3})

	require.ErrorIs(t, err, pagination.ErrProtocolViolation)
}

func TestReconcile_RetriesExhaustedAbortsPass(t *testing.T) {
	dir := newFakeDirectory()
	dir.createErr = func(call int, _ string) error {
		if call == 3 {
			return &retry.RetriesExhaustedError{Operation: "create_account", Attempts: 3, Last: errors.New("connection reset")}
		}
		return nil
	}
	gen := &scriptedGenerator{logins: sequentialLogins(10)}

	result, err := newReconciler(t, dir, gen, Options{}).Reconcile(t.Context(), Target{Count: 10})

	require.ErrorIs(t, err, retry.ErrRetriesExhausted)
	assert.Len(t, dir.createCalls, 3, "no further identities after an abort")
	assert.Equal(t, 2, result.Created)
	assert.Nil(t, result.Accounts)
}

func TestReconcile_CancellationAbortsPass(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	dir := newFakeDirectory()
	dir.createErr = func(call int, login string) error {
		if call == 2 {
			cancel()
			return &retry.CancelledError{Operation: "create_account", Attempts: 1, Cause: context.Canceled}
		}
		if login == "dup" {
			return papercut.NewAPIError("create_account", rpc.ServerError("Fault(1): duplicate"))
		}
		return nil
	}
	gen := &scriptedGenerator{logins: []string{"dup", "b", "c"}}

	result, err := newReconciler(t, dir, gen, Options{}).Reconcile(ctx, Target{Count: 3})

	require.Error(t, err)
	assert.ErrorIs(t, err, retry.ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)

	var agg *AggregateError
	require.ErrorAs(t, err, &agg, "failures before the abort are kept")
	assert.Len(t, agg.Failures, 1)
	assert.Nil(t, result.Accounts)
}

func TestReconcile_FinalEnumerationFailure(t *testing.T) {
	dir := newFakeDirectory()
	boom := errors.New("listing unavailable")
	dir.listErr = func(call int) error {
		if call > 1 {
			return boom
		}
		return nil
	}

	result, err := newReconciler(t, dir, &scriptedGenerator{logins: sequentialLogins(2)}, Options{}).
		Reconcile(t.Context(), Target{Count: 2})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 2, result.Created)
	assert.Nil(t, result.Accounts)
}

func TestReconcile_NegativeTarget(t *testing.T) {
	_, err := newReconciler(t, newFakeDirectory(), &scriptedGenerator{}, Options{}).
		Reconcile(t.Context(), Target{Count: -1})
	assert.Error(t, err)
}

func TestReconcile_WithIdentityGenerator(t *testing.T) {
	dir := newFakeDirectory()
	gen := identity.NewGenerator(20240601)

	result, err := newReconciler(t, dir, gen, Options{}).Reconcile(t.Context(), Target{Count: 20})

	assert.Len(t, dir.createCalls, 20)
	for login, batch := range dir.batches {
		require.NoError(t, batch.Validate(), login)
		assert.Equal(t, fixedPropertyOrder, batch.Names())
	}
	if err != nil {
		var agg *AggregateError
		require.ErrorAs(t, err, &agg, "only duplicate logins may fail")
		for _, f := range agg.Failures {
			assert.True(t, papercut.IsConflictError(f.Err))
		}
	}
	assert.Equal(t, result.Created, len(result.Accounts))
}

func TestBatchFor(t *testing.T) {
	id := identity.AccountIdentity{
		Login:         "jdoe",
		FullName:      "Jane Doe",
		PrimaryCard:   "p1",
		SecondaryCard: "s1",
		Department:    "department Legal",
		Email:         "jane.doe@example.com",
		Alias:         "jdoe-alias",
		Notes:         "n",
		Office:        "office Paris",
		Home:          "/home/users/jdoe",
		PIN:           "0007",
	}

	batch := BatchFor(id)
	require.NoError(t, batch.Validate())
	assert.Equal(t, fixedPropertyOrder, batch.Names())
	assert.Equal(t, "FALSE", batch[8].Value)
	assert.Equal(t, "0007", batch[10].Value)

	id.Restricted = true
	assert.Equal(t, "TRUE", BatchFor(id)[8].Value)
}

func TestAggregateError(t *testing.T) {
	conflict := papercut.NewAPIError("create_account", rpc.ServerError("Fault(1): duplicate"))
	agg := &AggregateError{}
	assert.NoError(t, agg.orNil())

	agg.add("a", StageCreate, conflict)
	assert.Equal(t, "1 identity failed: create a: "+conflict.Error(), agg.Error())
	assert.ErrorIs(t, agg, conflict)

	agg.add("b", StageSetProperties, errors.New("bad"))
	assert.Contains(t, agg.Error(), "2 identities failed")
	assert.Contains(t, agg.Error(), "set-properties b: bad")
}

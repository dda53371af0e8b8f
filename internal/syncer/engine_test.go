package syncer

import (
	"context"
	"encoding/base64"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/MarcoPoloResearchLab/frostlog/internal/credentials"
	"github.com/MarcoPoloResearchLab/frostlog/internal/records"
	"github.com/MarcoPoloResearchLab/frostlog/internal/remote/remotetest"
	"github.com/MarcoPoloResearchLab/frostlog/internal/status"
	"github.com/MarcoPoloResearchLab/frostlog/internal/store"
)

func sampleRemote(t *testing.T) records.Document {
	return records.Document{
		MaintenanceRecords: []records.MaintenanceRecord{
			{ID: 2, Date: day(t, "2023-11-10"), Service: records.ServicePreventive, Client: "JJL", Notes: "Substituição do contator"},
			{ID: 1, Date: day(t, "2023-11-01"), Service: records.ServiceCorrective, Client: "Dolma", Pending: "Válvula de R404 em R22"},
		},
		ComponentReplacements: []records.ComponentReplacementRecord{
			{ID: 1, Date: day(t, "2023-11-04"), Client: "Snowfrut", Component: "Disjuntor"},
		},
	}.Normalize()
}

func TestPollOnceWithoutConfigMakesNoRequest(t *testing.T) {
	server := remotetest.NewServer(testToken)
	defer server.Close()
	session := newTestSession(t, server, "a", false)

	outcome := session.engine.PollOnce(context.Background(), true)
	expectKind(t, outcome, KindConfigMissing)
	if gets, _ := server.Counts(); gets != 0 {
		t.Fatalf("expected no network access, got %d requests", gets)
	}
	if got := session.surface.Current(); got.State != status.StateError || got.Category != status.CategoryConfigMissing {
		t.Fatalf("unexpected banner %+v", got)
	}
}

func TestPollOnceAdoptsRemoteAndThenReportsUnchanged(t *testing.T) {
	server := remotetest.NewServer(testToken)
	defer server.Close()
	sha := seedRemote(t, server, sampleRemote(t))
	session := newTestSession(t, server, "a", true)
	ctx := context.Background()

	outcome := session.engine.PollOnce(ctx, false)
	expectKind(t, outcome, KindUpdated)
	if outcome.SHA != sha {
		t.Fatalf("expected sha %s, got %s", sha, outcome.SHA)
	}
	before := session.workspace.Document()
	if diff := cmp.Diff(sampleRemote(t), before); diff != "" {
		t.Fatalf("workspace mismatch (-want +got):\n%s", diff)
	}
	stored, err := store.GetAll[records.MaintenanceRecord](ctx, session.store, store.CollectionMaintenance)
	if err != nil || len(stored) != 2 {
		t.Fatalf("expected local store to hold the adopted records, got %d (%v)", len(stored), err)
	}

	expectKind(t, session.engine.PollOnce(ctx, false), KindUnchanged)
	after := session.workspace.Document()
	if diff := cmp.Diff(before, after); diff != "" {
		t.Fatalf("unchanged poll modified collections (-want +got):\n%s", diff)
	}
}

func TestPollOnceNotFoundIsNotAnError(t *testing.T) {
	server := remotetest.NewServer(testToken)
	defer server.Close()
	session := newTestSession(t, server, "a", true)

	outcome := session.engine.PollOnce(context.Background(), true)
	expectKind(t, outcome, KindNotFound)
	if !outcome.Succeeded() {
		t.Fatalf("a missing remote document must not be a failure")
	}
	if got := session.surface.Current().State; got != status.StateSuccess {
		t.Fatalf("expected success banner, got %s", got)
	}
}

func TestPollOnceUnauthorizedKeepsData(t *testing.T) {
	server := remotetest.NewServer(testToken)
	defer server.Close()
	seedRemote(t, server, sampleRemote(t))
	session := newTestSession(t, server, "a", true)
	ctx := context.Background()

	expectKind(t, session.engine.PollOnce(ctx, false), KindUpdated)
	before := session.workspace.Document()

	seedRemote(t, server, records.Document{})
	server.FailNextGet(http.StatusUnauthorized)
	expectKind(t, session.engine.PollOnce(ctx, false), KindUnauthorized)

	if diff := cmp.Diff(before, session.workspace.Document()); diff != "" {
		t.Fatalf("unauthorized poll changed collections (-want +got):\n%s", diff)
	}
	banner := session.surface.Current()
	if banner.Category != status.CategoryUnauthorized || banner.Message != presentations[KindUnauthorized].message {
		t.Fatalf("expected credential-specific banner, got %+v", banner)
	}
}

func TestPollOnceCorruptedContentKeepsDataAndRetries(t *testing.T) {
	server := remotetest.NewServer(testToken)
	defer server.Close()
	firstSHA := seedRemote(t, server, sampleRemote(t))
	session := newTestSession(t, server, "a", true)
	ctx := context.Background()

	expectKind(t, session.engine.PollOnce(ctx, false), KindUpdated)
	before := session.workspace.Document()

	server.Seed(base64.StdEncoding.EncodeToString([]byte(`{"maintenanceRecords":[{"ID":1,`)))
	outcome := session.engine.PollOnce(ctx, false)
	expectKind(t, outcome, KindDecodeError)
	if outcome.Category != status.CategoryDecode {
		t.Fatalf("expected decode category, got %s", outcome.Category)
	}
	if diff := cmp.Diff(before, session.workspace.Document()); diff != "" {
		t.Fatalf("decode failure changed collections (-want +got):\n%s", diff)
	}
	if sha, _ := session.engine.Tracker().Current(); sha != firstSHA {
		t.Fatalf("tracker must keep the last good fingerprint, got %s", sha)
	}

	repaired := sampleRemote(t)
	repaired.ComponentReplacements = append(repaired.ComponentReplacements,
		records.ComponentReplacementRecord{ID: 2, Date: day(t, "2023-10-01"), Client: "JJL", Component: "Relé"})
	seedRemote(t, server, repaired)
	expectKind(t, session.engine.PollOnce(ctx, false), KindUpdated)
	if got := len(session.workspace.Document().ComponentReplacements); got != 2 {
		t.Fatalf("expected retry to adopt repaired document, got %d components", got)
	}
}

func TestPublishCreatesDocumentWhenMissing(t *testing.T) {
	server := remotetest.NewServer(testToken)
	defer server.Close()
	session := newTestSession(t, server, "a", true)

	created, outcome, err := session.engine.AddMaintenance(context.Background(), records.MaintenanceRecord{
		Date:    day(t, "2023-11-12"),
		Service: records.ServiceCorrective,
		Client:  "JJL",
		Pending: "check compressor",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.Status != records.StatusPending {
		t.Fatalf("expected pending status, got %s", created.Status)
	}
	expectKind(t, outcome, KindPublished)
	if sha, _ := server.LastPut(); sha != "" {
		t.Fatalf("creation must not send a sha precondition, got %s", sha)
	}

	published := remoteDocument(t, server)
	if len(published.MaintenanceRecords) != 1 || published.MaintenanceRecords[0].ID != created.ID {
		t.Fatalf("expected exactly the new record remotely, got %+v", published.MaintenanceRecords)
	}
	if published.MaintenanceRecords[0].Status != records.StatusPending {
		t.Fatalf("expected published record to be pending")
	}
	if !session.workspace.Intents().Empty() {
		t.Fatalf("expected intents to be cleared after publish")
	}
	if sha, _ := session.engine.Tracker().Current(); sha != outcome.SHA {
		t.Fatalf("tracker must hold the sha returned by the write")
	}
	if got := session.surface.Current(); got.State != status.StateSuccess || got.Message != "Changes saved to GitHub." {
		t.Fatalf("expected explicit success banner, got %+v", got)
	}
}

func TestPublishConflictDoesNotOverwriteRemote(t *testing.T) {
	server := remotetest.NewServer(testToken)
	defer server.Close()
	seedRemote(t, server, sampleRemote(t))
	session := newTestSession(t, server, "a", true)
	ctx := context.Background()
	expectKind(t, session.engine.PollOnce(ctx, false), KindUpdated)

	concurrent := sampleRemote(t)
	concurrent.MaintenanceRecords = append(concurrent.MaintenanceRecords,
		records.MaintenanceRecord{ID: 3, Date: day(t, "2023-11-20"), Service: records.ServiceCorrective, Client: "Other session"})
	concurrent = concurrent.Normalize()
	session.remote.setAfterGet(func() { seedRemote(t, server, concurrent) })

	created, outcome, err := session.engine.AddMaintenance(ctx, records.MaintenanceRecord{
		Date: day(t, "2023-11-21"), Service: records.ServicePreventive, Client: "Casa Carne",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectKind(t, outcome, KindConflict)
	if outcome.Category != status.CategoryConflict {
		t.Fatalf("expected conflict category, got %s", outcome.Category)
	}

	published := remoteDocument(t, server)
	if diff := cmp.Diff(concurrent, published); diff != "" {
		t.Fatalf("conflicting publish overwrote remote state (-want +got):\n%s", diff)
	}
	if index := records.IndexOf(session.workspace.Document().MaintenanceRecords, created.ID); index < 0 {
		t.Fatalf("local record must be kept after a conflict")
	}
	if got := session.workspace.Intents().Maintenance.Created; len(got) != 1 || got[0] != created.ID {
		t.Fatalf("expected pending creation to survive, got %v", got)
	}
}

func TestTwoSessionsRacingBothRecordsSurvive(t *testing.T) {
	server := remotetest.NewServer(testToken)
	defer server.Close()
	seedRemote(t, server, records.Document{})
	sessionA := newTestSession(t, server, "a", true)
	sessionB := newTestSession(t, server, "b", true)
	ctx := context.Background()
	expectKind(t, sessionA.engine.PollOnce(ctx, false), KindUpdated)
	expectKind(t, sessionB.engine.PollOnce(ctx, false), KindUpdated)

	var publishedByA Outcome
	sessionB.remote.setAfterGet(func() {
		_, publishedByA, _ = sessionA.engine.AddComponent(ctx, records.ComponentReplacementRecord{
			Date: day(t, "2023-11-04"), Client: "Snowfrut", Component: "Disjuntor",
		})
	})
	recordB, outcomeB, err := sessionB.engine.AddComponent(ctx, records.ComponentReplacementRecord{
		Date: day(t, "2023-11-05"), Client: "JJL", Component: "Relé",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectKind(t, publishedByA, KindPublished)
	expectKind(t, outcomeB, KindConflict)
	if recordB.ID != 1 {
		t.Fatalf("expected B to have assigned id 1 locally, got %d", recordB.ID)
	}

	expectKind(t, sessionB.engine.PollOnce(ctx, true), KindUpdated)
	local := sessionB.workspace.Document().ComponentReplacements
	if len(local) != 2 {
		t.Fatalf("expected B to hold both records after polling, got %+v", local)
	}
	expectKind(t, sessionB.engine.Publish(ctx), KindPublished)

	final := remoteDocument(t, server).ComponentReplacements
	clients := make(map[string]int)
	for _, record := range final {
		clients[record.Client] = record.ID
	}
	if len(final) != 2 || clients["Snowfrut"] != 1 || clients["JJL"] != 2 {
		t.Fatalf("expected both records with distinct ids, got %+v", final)
	}
}

func TestPollResultOlderThanPublishIsDiscarded(t *testing.T) {
	server := remotetest.NewServer(testToken)
	defer server.Close()
	seedRemote(t, server, sampleRemote(t))
	session := newTestSession(t, server, "a", false)
	ctx := context.Background()

	created, outcome, err := session.engine.AddMaintenance(ctx, records.MaintenanceRecord{
		Date: day(t, "2023-12-01"), Service: records.ServiceCorrective, Client: "Casa Carne",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectKind(t, outcome, KindConfigIncomplete)
	if err := session.workspace.SetRemoteConfig(credentials.RemoteConfig{Token: testToken, Owner: "acme", Repo: "dashboard"}); err != nil {
		t.Fatalf("failed to set remote config: %v", err)
	}

	var published Outcome
	session.remote.setAfterGet(func() { published = session.engine.Publish(ctx) })
	polled := session.engine.PollOnce(ctx, false)

	expectKind(t, published, KindPublished)
	expectKind(t, polled, KindUnchanged)
	if sha, _ := session.engine.Tracker().Current(); sha != published.SHA {
		t.Fatalf("stale poll replaced the tracked fingerprint: %s", sha)
	}
	document := session.workspace.Document()
	if len(document.MaintenanceRecords) != 3 || document.MaintenanceRecords[0].Client != created.Client {
		t.Fatalf("stale poll replaced newer local state: %+v", document.MaintenanceRecords)
	}
}

func TestMutationIsStoredLocallyWhenPublishCannotRun(t *testing.T) {
	server := remotetest.NewServer(testToken)
	defer server.Close()
	session := newTestSession(t, server, "a", false)
	ctx := context.Background()

	created, outcome, err := session.engine.AddComponent(ctx, records.ComponentReplacementRecord{
		Date: day(t, "2023-11-04"), Client: "Snowfrut", Component: "Resistência de Degelo",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectKind(t, outcome, KindConfigIncomplete)
	if _, puts := server.Counts(); puts != 0 {
		t.Fatalf("expected no write without configuration")
	}

	stored, err := store.GetAll[records.ComponentReplacementRecord](ctx, session.store, store.CollectionComponents)
	if err != nil || len(stored) != 1 || stored[0].ID != created.ID {
		t.Fatalf("expected record in local store, got %+v (%v)", stored, err)
	}

	reloaded, err := NewWorkspace(WorkspaceConfig{Store: session.store})
	if err != nil {
		t.Fatalf("failed to build workspace: %v", err)
	}
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("failed to reload workspace: %v", err)
	}
	if got := reloaded.Intents().Components.Created; len(got) != 1 || got[0] != created.ID {
		t.Fatalf("expected pending creation to be restored, got %v", got)
	}
}

func TestUpdateResolveAndDeletePublishWholeRecords(t *testing.T) {
	server := remotetest.NewServer(testToken)
	defer server.Close()
	seedRemote(t, server, sampleRemote(t))
	session := newTestSession(t, server, "a", true)
	ctx := context.Background()
	expectKind(t, session.engine.PollOnce(ctx, false), KindUpdated)

	record := session.workspace.Document().MaintenanceRecords[0]
	record.Pending = "trocar relé"
	updated, outcome, err := session.engine.UpdateMaintenance(ctx, record)
	if err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	expectKind(t, outcome, KindPublished)
	if updated.Status != records.StatusPending {
		t.Fatalf("expected pending after update")
	}

	resolved, outcome, err := session.engine.ResolvePendency(ctx, record.ID, "", "Relé substituído")
	if err != nil {
		t.Fatalf("unexpected resolve error: %v", err)
	}
	expectKind(t, outcome, KindPublished)
	if resolved.Status != records.StatusCompleted {
		t.Fatalf("expected completed after resolving")
	}

	outcome, err = session.engine.DeleteMaintenance(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	expectKind(t, outcome, KindPublished)

	published := remoteDocument(t, server).MaintenanceRecords
	if len(published) != 1 {
		t.Fatalf("expected one remaining record, got %+v", published)
	}
	if published[0].ID != record.ID || published[0].Notes != "Substituição do contator\nRelé substituído" || published[0].Status != records.StatusCompleted {
		t.Fatalf("unexpected published record %+v", published[0])
	}

	if _, err := session.engine.DeleteMaintenance(ctx, 99); err == nil {
		t.Fatalf("expected not found error for unknown id")
	}
}

func TestImportPublishesOneCommit(t *testing.T) {
	server := remotetest.NewServer(testToken)
	defer server.Close()
	seedRemote(t, server, sampleRemote(t))
	session := newTestSession(t, server, "a", true)
	ctx := context.Background()
	expectKind(t, session.engine.PollOnce(ctx, false), KindUpdated)
	_, putsBefore := server.Counts()

	result, outcome, err := session.engine.Import(ctx,
		[]records.MaintenanceRecord{
			{Date: day(t, "2023-09-01"), Service: records.ServiceInstallation, Client: "Nova"},
			{Date: day(t, "2023-09-02"), Service: records.ServicePreventive, Client: "Nova", Pending: "x"},
		},
		[]records.ComponentReplacementRecord{{Date: day(t, "2023-09-03"), Client: "Nova", Component: "Tubulação"}},
	)
	if err != nil {
		t.Fatalf("unexpected import error: %v", err)
	}
	expectKind(t, outcome, KindPublished)
	if result.Maintenance[0].ID != 3 || result.Maintenance[1].ID != 4 || result.Components[0].ID != 2 {
		t.Fatalf("unexpected identifiers %+v", result)
	}
	if _, puts := server.Counts(); puts != putsBefore+1 {
		t.Fatalf("expected a single write, got %d", puts-putsBefore)
	}
	if _, message := server.LastPut(); message != "Import 2 maintenance records and 1 component replacements" {
		t.Fatalf("unexpected commit message %q", message)
	}
}

func TestPublishReadFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   Kind
	}{
		{name: "server-error", status: http.StatusInternalServerError, want: KindReadFailed},
		{name: "unauthorized", status: http.StatusUnauthorized, want: KindUnauthorized},
		{name: "forbidden", status: http.StatusForbidden, want: KindUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := remotetest.NewServer(testToken)
			defer server.Close()
			seedRemote(t, server, sampleRemote(t))
			session := newTestSession(t, server, "a", true)
			server.FailNextGet(tt.status)

			_, outcome, err := session.engine.AddMaintenance(context.Background(), records.MaintenanceRecord{
				Service: records.ServiceCorrective, Client: "JJL",
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			expectKind(t, outcome, tt.want)
			if _, puts := server.Counts(); puts != 0 {
				t.Fatalf("must never write after a failed read")
			}
		})
	}
}

func TestPublishWriteFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   Kind
	}{
		{name: "unauthorized", status: http.StatusForbidden, want: KindUnauthorized},
		{name: "stale-target", status: http.StatusNotFound, want: KindStaleTarget},
		{name: "server-error", status: http.StatusBadGateway, want: KindTransient},
		{name: "sha-mismatch", status: http.StatusUnprocessableEntity, want: KindConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := remotetest.NewServer(testToken)
			defer server.Close()
			seedRemote(t, server, sampleRemote(t))
			session := newTestSession(t, server, "a", true)
			server.FailNextPut(tt.status)

			_, outcome, err := session.engine.AddMaintenance(context.Background(), records.MaintenanceRecord{
				Service: records.ServiceCorrective, Client: "JJL",
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			expectKind(t, outcome, tt.want)
			if session.workspace.Intents().Empty() {
				t.Fatalf("failed write must keep pending changes")
			}
		})
	}
}

func TestValidationFailureChangesNothing(t *testing.T) {
	server := remotetest.NewServer(testToken)
	defer server.Close()
	session := newTestSession(t, server, "a", true)

	_, _, err := session.engine.AddComponent(context.Background(), records.ComponentReplacementRecord{Client: "JJL", Component: "Antena"})
	if !errorsIsInvalid(err) {
		t.Fatalf("expected invalid record error, got %v", err)
	}
	if gets, puts := server.Counts(); gets != 0 || puts != 0 {
		t.Fatalf("expected no remote calls")
	}
}

func TestSessionsGateActivity(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	workspace, err := NewWorkspace(WorkspaceConfig{Store: openTestStore(t, "a"), Clock: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("failed to build workspace: %v", err)
	}
	if workspace.HasActiveSession() {
		t.Fatalf("expected no active session")
	}
	workspace.StartSession("one", now.Add(time.Minute))
	workspace.StartSession("expired", now.Add(-time.Minute))
	if !workspace.HasActiveSession() {
		t.Fatalf("expected an active session")
	}
	workspace.EndSession("one")
	if workspace.HasActiveSession() {
		t.Fatalf("expected sessions to end")
	}
}

func TestPollerTriggerRunsManualPoll(t *testing.T) {
	server := remotetest.NewServer(testToken)
	defer server.Close()
	seedRemote(t, server, sampleRemote(t))
	session := newTestSession(t, server, "a", true)
	poller := NewPoller(PollerConfig{Engine: session.engine, Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- poller.Serve(ctx) }()
	poller.Trigger()

	deadline := time.Now().Add(5 * time.Second)
	for len(session.workspace.Document().MaintenanceRecords) == 0 {
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("expected triggered poll to adopt remote data")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done
}

func TestPublishAgainstMissingDocumentKeepsExistingLocalRecords(t *testing.T) {
	server := remotetest.NewServer(testToken)
	defer server.Close()
	ctx := context.Background()

	seeded := openTestStore(t, "a")
	existing := []records.MaintenanceRecord{
		{ID: 2, Date: day(t, "2023-11-10"), Service: records.ServicePreventive, Client: "JJL"},
		{ID: 1, Date: day(t, "2023-11-01"), Service: records.ServiceCorrective, Client: "Dolma"},
	}
	if err := store.SaveAll(ctx, seeded, store.CollectionMaintenance, existing); err != nil {
		t.Fatalf("failed to seed local store: %v", err)
	}
	session := newTestSession(t, server, "a", true)

	created, outcome, err := session.engine.AddMaintenance(ctx, records.MaintenanceRecord{
		Date: day(t, "2023-11-12"), Service: records.ServiceCorrective, Client: "Casa Carne",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectKind(t, outcome, KindPublished)
	if created.ID != 3 {
		t.Fatalf("expected id 3, got %d", created.ID)
	}

	want := []int{3, 2, 1}
	if diff := cmp.Diff(want, maintenanceIDs(remoteDocument(t, server).MaintenanceRecords)); diff != "" {
		t.Fatalf("remote lost local records (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, maintenanceIDs(session.workspace.Document().MaintenanceRecords)); diff != "" {
		t.Fatalf("local state lost records (-want +got):\n%s", diff)
	}
	stored, err := store.GetAll[records.MaintenanceRecord](ctx, session.store, store.CollectionMaintenance)
	if err != nil || len(stored) != 3 {
		t.Fatalf("expected three stored records, got %d (%v)", len(stored), err)
	}
}

func TestPublishSendsLocalRecordsMissingRemotely(t *testing.T) {
	server := remotetest.NewServer(testToken)
	defer server.Close()
	ctx := context.Background()
	sha := seedRemote(t, server, sampleRemote(t))

	seeded := openTestStore(t, "a")
	local := []records.ComponentReplacementRecord{
		{ID: 1, Date: day(t, "2023-11-04"), Client: "Snowfrut", Component: "Disjuntor"},
		{ID: 5, Date: day(t, "2023-11-30"), Client: "JJL", Component: "Contatora"},
	}
	if err := store.SaveAll(ctx, seeded, store.CollectionComponents, local); err != nil {
		t.Fatalf("failed to seed local store: %v", err)
	}
	session := newTestSession(t, server, "a", true)

	outcome := session.engine.Publish(ctx)
	expectKind(t, outcome, KindPublished)
	if precondition, _ := server.LastPut(); precondition != sha {
		t.Fatalf("expected write against sha %s, got %s", sha, precondition)
	}
	published := remoteDocument(t, server).ComponentReplacements
	if len(published) != 2 || published[0].ID != 5 {
		t.Fatalf("expected local-only record to be published, got %+v", published)
	}

	_, putsBefore := server.Counts()
	expectKind(t, session.engine.Publish(ctx), KindUnchanged)
	if _, puts := server.Counts(); puts != putsBefore {
		t.Fatalf("publishing an already published state must not write")
	}
}

func TestDeletedIdentifiersAreNeverReassigned(t *testing.T) {
	server := remotetest.NewServer(testToken)
	defer server.Close()
	session := newTestSession(t, server, "a", true)
	ctx := context.Background()

	add := func(client string) records.MaintenanceRecord {
		t.Helper()
		created, outcome, err := session.engine.AddMaintenance(ctx, records.MaintenanceRecord{
			Date: day(t, "2023-11-12"), Service: records.ServiceCorrective, Client: client,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		expectKind(t, outcome, KindPublished)
		return created
	}

	first := add("JJL")
	second := add("Dolma")
	if first.ID != 1 || second.ID != 2 {
		t.Fatalf("unexpected ids %d and %d", first.ID, second.ID)
	}
	outcome, err := session.engine.DeleteMaintenance(ctx, second.ID)
	if err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	expectKind(t, outcome, KindPublished)

	third := add("Snowfrut")
	if third.ID != 3 {
		t.Fatalf("expected deleted id 2 to stay retired, got %d", third.ID)
	}

	reloaded, err := NewWorkspace(WorkspaceConfig{Store: session.store})
	if err != nil {
		t.Fatalf("failed to build workspace: %v", err)
	}
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("failed to reload workspace: %v", err)
	}
	if got := reloaded.Watermark().Maintenance; got != 3 {
		t.Fatalf("expected persisted watermark 3, got %d", got)
	}
}

func TestMutationsQueueBehindRunningPublish(t *testing.T) {
	server := remotetest.NewServer(testToken)
	defer server.Close()
	seedRemote(t, server, records.Document{})
	session := newTestSession(t, server, "a", true)
	ctx := context.Background()
	expectKind(t, session.engine.PollOnce(ctx, false), KindUpdated)

	type result struct {
		record  records.ComponentReplacementRecord
		outcome Outcome
		err     error
	}
	second := make(chan result, 1)
	putsWhileFirstHeld := -1
	session.remote.setAfterGet(func() {
		go func() {
			record, outcome, err := session.engine.AddComponent(ctx, records.ComponentReplacementRecord{
				Date: day(t, "2023-11-05"), Client: "JJL", Component: "Relé",
			})
			second <- result{record: record, outcome: outcome, err: err}
		}()
		time.Sleep(100 * time.Millisecond)
		_, putsWhileFirstHeld = server.Counts()
	})

	first, outcome, err := session.engine.AddComponent(ctx, records.ComponentReplacementRecord{
		Date: day(t, "2023-11-04"), Client: "Snowfrut", Component: "Disjuntor",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectKind(t, outcome, KindPublished)

	var queued result
	select {
	case queued = <-second:
	case <-time.After(5 * time.Second):
		t.Fatalf("queued mutation never finished")
	}
	if queued.err != nil {
		t.Fatalf("unexpected error: %v", queued.err)
	}
	expectKind(t, queued.outcome, KindPublished)

	if putsWhileFirstHeld != 0 {
		t.Fatalf("a second write started while the first publish was in flight (%d writes)", putsWhileFirstHeld)
	}
	if _, puts := server.Counts(); puts != 2 {
		t.Fatalf("expected two sequential writes, got %d", puts)
	}
	if _, message := server.LastPut(); message != "Add Relé replacement 2 for JJL" {
		t.Fatalf("expected the queued mutation to write last, got %q", message)
	}
	if first.ID != 1 || queued.record.ID != 2 {
		t.Fatalf("unexpected ids %d and %d", first.ID, queued.record.ID)
	}
	if got := len(remoteDocument(t, server).ComponentReplacements); got != 2 {
		t.Fatalf("expected both records remotely, got %d", got)
	}
}

func TestConcurrentPollsShareOneFetchAndManualCallerGetsBanner(t *testing.T) {
	server := remotetest.NewServer(testToken)
	defer server.Close()
	seedRemote(t, server, sampleRemote(t))
	session := newTestSession(t, server, "a", true)
	ctx := context.Background()
	expectKind(t, session.engine.PollOnce(ctx, false), KindUpdated)
	session.surface.Dismiss()

	manual := make(chan Outcome, 1)
	session.remote.setAfterGet(func() {
		go func() { manual <- session.engine.PollOnce(ctx, true) }()
		deadline := time.Now().Add(5 * time.Second)
		for session.surface.Current().State != status.StateSyncing {
			if time.Now().After(deadline) {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
		time.Sleep(50 * time.Millisecond)
	})

	expectKind(t, session.engine.PollOnce(ctx, false), KindUnchanged)
	var joined Outcome
	select {
	case joined = <-manual:
	case <-time.After(5 * time.Second):
		t.Fatalf("manual poll never finished")
	}
	expectKind(t, joined, KindUnchanged)

	if gets, _ := server.Counts(); gets != 2 {
		t.Fatalf("expected the manual poll to share the running fetch, got %d reads", gets)
	}
	banner := session.surface.Current()
	if banner.State != status.StateSuccess || banner.Message != presentations[KindUnchanged].message {
		t.Fatalf("expected up-to-date banner for the manual refresh, got %+v", banner)
	}
}

func maintenanceIDs(collection []records.MaintenanceRecord) []int {
	ids := make([]int, 0, len(collection))
	for _, record := range collection {
		ids = append(ids, record.ID)
	}
	return ids
}

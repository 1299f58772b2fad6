package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/d56845684/edu-auth-service/internal/core/domain"
	"github.com/d56845684/edu-auth-service/internal/infra/security"
)

type oauthFixture struct {
	provider    *oauthProviderMock
	states      *stateStoreMock
	identity    *identityMock
	profiles    *profileRepoMock
	bindingRepo *bindingRepoMock
	sessions    *sessionStoreMock
	events      *eventRecorder
	svc         *OAuthService
}

func newOAuthFixture() *oauthFixture {
	f := &oauthFixture{
		provider:    &oauthProviderMock{},
		states:      newStateStoreMock(),
		identity:    newIdentityMock(),
		profiles:    newProfileRepoMock(),
		bindingRepo: newBindingRepoMock(),
		sessions:    newSessionStoreMock(),
		events:      &eventRecorder{},
	}
	log := zap.NewNop()
	codec := security.NewTokenCodec("unit-test-secret-value-0123456789ab", "edu-auth-test", 15*time.Minute, 168*time.Hour)
	auth := NewAuthService(AuthConfig{SessionTTL: 168 * time.Hour, UserInfoTTL: time.Minute},
		f.identity, f.sessions, f.profiles, newCacheMock(), codec, f.events, log)
	bindings := NewBindingService(f.bindingRepo, f.events, log)
	f.svc = NewOAuthService(f.provider, f.states, bindings, f.identity, f.profiles, auth, 10*time.Minute, log)
	return f
}

func (f *oauthFixture) callback(t *testing.T, state string) (*CallbackResult, error) {
	t.Helper()
	return f.svc.HandleCallback(context.Background(), state, "auth-code", domain.DeviceInfo{})
}

func flowCode(t *testing.T, err error) string {
	t.Helper()
	var fe *FlowError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FlowError, got %v", err)
	}
	return fe.Code
}

func TestOAuthService_BeginLogin(t *testing.T) {
	f := newOAuthFixture()

	authURL, err := f.svc.BeginLogin(context.Background(), domain.ChannelStudent)
	if err != nil {
		t.Fatalf("BeginLogin returned error: %v", err)
	}
	if !strings.Contains(authURL, "state=state-1") {
		t.Fatalf("expected state token in URL, got %s", authURL)
	}
	if f.states.states["state-1"].UserID != nil {
		t.Fatalf("login state must not carry a linking user")
	}

	if _, err := f.svc.BeginLogin(context.Background(), domain.Channel("parent")); err == nil {
		t.Fatalf("expected error for unknown channel")
	}

	f.provider.configured = map[domain.Channel]bool{domain.ChannelStudent: false}
	if _, err := f.svc.BeginLogin(context.Background(), domain.ChannelStudent); err == nil {
		t.Fatalf("expected error for unconfigured channel")
	}
}

func TestOAuthService_BeginBindCarriesUser(t *testing.T) {
	f := newOAuthFixture()

	if _, err := f.svc.BeginBind(context.Background(), domain.ChannelTeacher, "user-1"); err != nil {
		t.Fatalf("BeginBind returned error: %v", err)
	}
	state := f.states.states["state-1"]
	if state.UserID == nil || *state.UserID != "user-1" {
		t.Fatalf("expected linking user on bind state, got %+v", state)
	}
	if state.Channel != domain.ChannelTeacher {
		t.Fatalf("expected teacher channel, got %s", state.Channel)
	}
}

func TestOAuthService_CallbackInvalidState(t *testing.T) {
	f := newOAuthFixture()
	f.provider.profile = &domain.ExternalProfile{ExternalID: "line-1"}

	_, err := f.callback(t, "never-issued")
	if code := flowCode(t, err); code != FlowErrInvalidState {
		t.Fatalf("expected invalid_state, got %s", code)
	}

	// A consumed state cannot be replayed.
	if _, err := f.svc.BeginLogin(context.Background(), domain.ChannelStudent); err != nil {
		t.Fatalf("BeginLogin returned error: %v", err)
	}
	if _, err := f.callback(t, "state-1"); err != nil {
		t.Fatalf("first callback returned error: %v", err)
	}
	_, err = f.callback(t, "state-1")
	if code := flowCode(t, err); code != FlowErrInvalidState {
		t.Fatalf("expected invalid_state on replay, got %s", code)
	}
}

func TestOAuthService_CallbackProviderFailures(t *testing.T) {
	f := newOAuthFixture()
	f.provider.profile = &domain.ExternalProfile{ExternalID: "line-1"}

	if _, err := f.svc.BeginLogin(context.Background(), domain.ChannelStudent); err != nil {
		t.Fatalf("BeginLogin returned error: %v", err)
	}
	f.provider.exchangeErr = errors.New("token endpoint 400")
	_, err := f.callback(t, "state-1")
	if code := flowCode(t, err); code != FlowErrExchangeFailed {
		t.Fatalf("expected exchange_failed, got %s", code)
	}

	if _, err := f.svc.BeginLogin(context.Background(), domain.ChannelStudent); err != nil {
		t.Fatalf("BeginLogin returned error: %v", err)
	}
	f.provider.exchangeErr = nil
	f.provider.profileErr = errors.New("profile endpoint 500")
	_, err = f.callback(t, "state-2")
	if code := flowCode(t, err); code != FlowErrProviderError {
		t.Fatalf("expected provider_error, got %s", code)
	}
}

func TestOAuthService_CallbackExistingBinding(t *testing.T) {
	f := newOAuthFixture()
	f.identity.addUser("user-1", "bound@example.com", nil)
	f.provider.profile = &domain.ExternalProfile{ExternalID: "line-1", DisplayName: "Bound"}

	owner := "user-1"
	if _, err := f.bindingRepo.Insert(context.Background(), domain.Binding{
		UserID:     &owner,
		ExternalID: "line-1",
		Status:     domain.BindingStatusActive,
		Channel:    domain.ChannelStudent,
	}); err != nil {
		t.Fatalf("Insert returned error: %v", err)
	}

	if _, err := f.svc.BeginLogin(context.Background(), domain.ChannelStudent); err != nil {
		t.Fatalf("BeginLogin returned error: %v", err)
	}
	result, err := f.callback(t, "state-1")
	if err != nil {
		t.Fatalf("HandleCallback returned error: %v", err)
	}
	if result.Login.User.ID != "user-1" {
		t.Fatalf("expected re-login as the bound user, got %s", result.Login.User.ID)
	}
	if result.NewUser || result.Merged {
		t.Fatalf("pure re-login must not flag new_user or merged: %+v", result)
	}
	// A re-login never rewrites the binding row.
	if f.bindingRepo.rebinds != 0 || f.bindingRepo.inserts != 1 {
		t.Fatalf("expected no binding mutation, inserts=%d rebinds=%d", f.bindingRepo.inserts, f.bindingRepo.rebinds)
	}
}

func TestOAuthService_CallbackBindConflict(t *testing.T) {
	f := newOAuthFixture()
	f.identity.addUser("user-1", "a@example.com", nil)
	f.identity.addUser("user-2", "b@example.com", nil)
	f.provider.profile = &domain.ExternalProfile{ExternalID: "line-1"}

	owner := "user-1"
	if _, err := f.bindingRepo.Insert(context.Background(), domain.Binding{
		UserID:     &owner,
		ExternalID: "line-1",
		Status:     domain.BindingStatusActive,
		Channel:    domain.ChannelStudent,
	}); err != nil {
		t.Fatalf("Insert returned error: %v", err)
	}

	// user-2 tries to bind an identity that actively belongs to user-1.
	if _, err := f.svc.BeginBind(context.Background(), domain.ChannelStudent, "user-2"); err != nil {
		t.Fatalf("BeginBind returned error: %v", err)
	}
	_, err := f.callback(t, "state-1")
	if code := flowCode(t, err); code != FlowErrBindingConflict {
		t.Fatalf("expected binding_conflict, got %s", code)
	}
}

func TestOAuthService_CallbackBindsInitiatingUser(t *testing.T) {
	f := newOAuthFixture()
	f.identity.addUser("user-1", "a@example.com", nil)
	f.profiles.roles["user-1"] = domain.RoleTeacher
	f.provider.profile = &domain.ExternalProfile{ExternalID: "line-1", DisplayName: "Teacher"}

	if _, err := f.svc.BeginBind(context.Background(), domain.ChannelTeacher, "user-1"); err != nil {
		t.Fatalf("BeginBind returned error: %v", err)
	}
	result, err := f.callback(t, "state-1")
	if err != nil {
		t.Fatalf("HandleCallback returned error: %v", err)
	}
	if result.Login.User.ID != "user-1" || result.NewUser || result.Merged {
		t.Fatalf("unexpected bind result: %+v", result)
	}

	binding, err := f.bindingRepo.GetByExternalID(context.Background(), "line-1", domain.ChannelTeacher)
	if err != nil {
		t.Fatalf("expected binding row: %v", err)
	}
	if !binding.OwnedBy("user-1") {
		t.Fatalf("expected binding owned by user-1, got %+v", binding)
	}
}

func TestOAuthService_CallbackMergesByEmail(t *testing.T) {
	f := newOAuthFixture()
	f.identity.addUser("user-1", "same@example.com", nil)
	f.profiles.roles["user-1"] = domain.RoleStudent

	email := "Same@Example.com"
	f.provider.profile = &domain.ExternalProfile{ExternalID: "line-1", DisplayName: "Same", Email: &email}

	if _, err := f.svc.BeginLogin(context.Background(), domain.ChannelStudent); err != nil {
		t.Fatalf("BeginLogin returned error: %v", err)
	}
	result, err := f.callback(t, "state-1")
	if err != nil {
		t.Fatalf("HandleCallback returned error: %v", err)
	}
	if !result.Merged || result.NewUser {
		t.Fatalf("expected email merge, got %+v", result)
	}
	if result.Login.User.ID != "user-1" {
		t.Fatalf("expected login as the merged account, got %s", result.Login.User.ID)
	}
	if len(f.identity.created) != 0 {
		t.Fatalf("merge must not provision a new account")
	}
	binding, err := f.bindingRepo.GetByExternalID(context.Background(), "line-1", domain.ChannelStudent)
	if err != nil || !binding.OwnedBy("user-1") {
		t.Fatalf("expected binding for merged account, got %+v err=%v", binding, err)
	}
}

func TestOAuthService_CallbackProvisionsNewAccount(t *testing.T) {
	f := newOAuthFixture()
	f.provider.profile = &domain.ExternalProfile{ExternalID: "U1234", DisplayName: "Fresh"}

	if _, err := f.svc.BeginLogin(context.Background(), domain.ChannelTeacher); err != nil {
		t.Fatalf("BeginLogin returned error: %v", err)
	}
	result, err := f.callback(t, "state-1")
	if err != nil {
		t.Fatalf("HandleCallback returned error: %v", err)
	}
	if !result.NewUser || result.Merged {
		t.Fatalf("expected fresh provisioning, got %+v", result)
	}
	// The channel decides the provisioned role, and a missing provider email
	// gets a deterministic placeholder.
	if result.Login.User.Role != domain.RoleTeacher {
		t.Fatalf("expected teacher role from channel, got %s", result.Login.User.Role)
	}
	user, err := f.identity.GetUser(context.Background(), result.Login.User.ID)
	if err != nil {
		t.Fatalf("expected provisioned account: %v", err)
	}
	if user.Email != "line_U1234@line.placeholder" {
		t.Fatalf("expected placeholder email, got %s", user.Email)
	}
	binding, err := f.bindingRepo.GetByExternalID(context.Background(), "U1234", domain.ChannelTeacher)
	if err != nil || !binding.OwnedBy(user.ID) {
		t.Fatalf("expected binding for provisioned account, got %+v err=%v", binding, err)
	}
	if len(f.events.sessionsCreated) != 1 || f.events.sessionsCreated[0].LoginMethod != "line" {
		t.Fatalf("expected a line login event, got %+v", f.events.sessionsCreated)
	}
}

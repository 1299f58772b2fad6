package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/d56845684/edu-auth-service/internal/core/domain"
	"github.com/d56845684/edu-auth-service/internal/core/port"
	"github.com/d56845684/edu-auth-service/internal/infra/security"
	"github.com/d56845684/edu-auth-service/internal/provider"
	"github.com/d56845684/edu-auth-service/internal/repository"
)

// identityMock is an in-memory stand-in for the upstream identity provider.
type identityMock struct {
	byID    map[string]*domain.ExternalUser
	byEmail map[string]*domain.ExternalUser

	signInErr error
	createErr error

	nextID   int
	created  []string
	deleted  []string
	signOuts int
	resets   []string
	journal  *[]string
}

func newIdentityMock() *identityMock {
	return &identityMock{
		byID:    make(map[string]*domain.ExternalUser),
		byEmail: make(map[string]*domain.ExternalUser),
	}
}

func (m *identityMock) addUser(id, email string, metadata map[string]any) *domain.ExternalUser {
	confirmed := time.Now().UTC()
	user := &domain.ExternalUser{
		ID:               id,
		Email:            email,
		EmailConfirmedAt: &confirmed,
		CreatedAt:        time.Now().UTC(),
		Metadata:         metadata,
	}
	m.byID[id] = user
	m.byEmail[email] = user
	return user
}

func (m *identityMock) log(entry string) {
	if m.journal != nil {
		*m.journal = append(*m.journal, entry)
	}
}

func (m *identityMock) SignInWithPassword(_ context.Context, email, _ string) (*domain.ExternalUser, *domain.ExternalSession, error) {
	if m.signInErr != nil {
		return nil, nil, m.signInErr
	}
	user, ok := m.byEmail[email]
	if !ok {
		return nil, nil, provider.ErrInvalidCredentials
	}
	return user, &domain.ExternalSession{AccessToken: "upstream-access"}, nil
}

func (m *identityMock) CreateUser(_ context.Context, email, _ string, metadata map[string]any) (*domain.ExternalUser, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	if _, exists := m.byEmail[email]; exists {
		return nil, provider.ErrEmailConflict
	}
	m.nextID++
	id := fmt.Sprintf("ext-%d", m.nextID)
	user := m.addUser(id, email, metadata)
	m.created = append(m.created, id)
	m.log("create_user:" + id)
	return user, nil
}

func (m *identityMock) GetUser(_ context.Context, id string) (*domain.ExternalUser, error) {
	user, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return user, nil
}

func (m *identityMock) GetUserByEmail(_ context.Context, email string) (*domain.ExternalUser, error) {
	user, ok := m.byEmail[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return user, nil
}

func (m *identityMock) DeleteUser(_ context.Context, id string) error {
	if user, ok := m.byID[id]; ok {
		delete(m.byEmail, user.Email)
		delete(m.byID, id)
	}
	m.deleted = append(m.deleted, id)
	m.log("delete_user:" + id)
	return nil
}

func (m *identityMock) SendPasswordReset(_ context.Context, email string) error {
	m.resets = append(m.resets, email)
	return nil
}

func (m *identityMock) SignOut(_ context.Context, _ string) error {
	m.signOuts++
	return nil
}

var _ port.IdentityProvider = (*identityMock)(nil)

// sessionStoreMock keeps sessions and the token blacklist in plain maps.
type sessionStoreMock struct {
	sessions  map[string]*domain.Session // keyed by raw secret
	blacklist map[string]bool

	counter          int
	createErr        error
	getErr           error
	blacklistErr     error
	isBlacklistedErr error
}

func newSessionStoreMock() *sessionStoreMock {
	return &sessionStoreMock{
		sessions:  make(map[string]*domain.Session),
		blacklist: make(map[string]bool),
	}
}

func (m *sessionStoreMock) Create(_ context.Context, userID, role string, device domain.DeviceInfo, extra map[string]string) (string, *domain.Session, error) {
	if m.createErr != nil {
		return "", nil, m.createErr
	}
	m.counter++
	secret := fmt.Sprintf("secret-%d", m.counter)
	now := time.Now().UTC()
	session := &domain.Session{
		SecretHash:   security.HashToken(secret),
		UserID:       userID,
		Role:         role,
		CreatedAt:    now,
		LastActivity: now,
		Extra:        extra,
	}
	if device.UserAgent != "" {
		ua := device.UserAgent
		session.UserAgent = &ua
	}
	if device.IPAddress != "" {
		ip := device.IPAddress
		session.IPAddress = &ip
	}
	m.sessions[secret] = session
	copy := *session
	return secret, &copy, nil
}

func (m *sessionStoreMock) Get(_ context.Context, secret string) (*domain.Session, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	session, ok := m.sessions[secret]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *session
	return &copy, nil
}

func (m *sessionStoreMock) Touch(_ context.Context, secret string) (bool, error) {
	session, ok := m.sessions[secret]
	if !ok {
		return false, nil
	}
	session.LastActivity = time.Now().UTC()
	return true, nil
}

func (m *sessionStoreMock) Destroy(_ context.Context, secret string) error {
	delete(m.sessions, secret)
	return nil
}

func (m *sessionStoreMock) DestroyByHash(_ context.Context, userID, secretHash string) error {
	for secret, session := range m.sessions {
		if session.UserID == userID && session.SecretHash == secretHash {
			delete(m.sessions, secret)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *sessionStoreMock) DestroyAll(_ context.Context, userID string) (int, error) {
	count := 0
	for secret, session := range m.sessions {
		if session.UserID == userID {
			delete(m.sessions, secret)
			count++
		}
	}
	return count, nil
}

func (m *sessionStoreMock) ListByUser(_ context.Context, userID string) ([]domain.Session, error) {
	var out []domain.Session
	for _, session := range m.sessions {
		if session.UserID == userID {
			out = append(out, *session)
		}
	}
	return out, nil
}

func (m *sessionStoreMock) Blacklist(_ context.Context, token string, _ time.Duration) error {
	if m.blacklistErr != nil {
		return m.blacklistErr
	}
	m.blacklist[token] = true
	return nil
}

func (m *sessionStoreMock) IsBlacklisted(_ context.Context, token string) (bool, error) {
	if m.isBlacklistedErr != nil {
		return false, m.isBlacklistedErr
	}
	return m.blacklist[token], nil
}

var _ port.SessionStore = (*sessionStoreMock)(nil)

// profileRepoMock is an in-memory profile and role-entity store.
type profileRepoMock struct {
	profiles map[string]domain.UserProfile
	roles    map[string]string
	subtypes map[string]*string
	entities map[string]domain.RoleEntity

	subtypeErr       error
	setSubtypeErr    error
	insertEntityErr  error
	insertProfileErr error

	entityCounter int
	journal       *[]string
}

func newProfileRepoMock() *profileRepoMock {
	return &profileRepoMock{
		profiles: make(map[string]domain.UserProfile),
		roles:    make(map[string]string),
		subtypes: make(map[string]*string),
		entities: make(map[string]domain.RoleEntity),
	}
}

func (m *profileRepoMock) log(entry string) {
	if m.journal != nil {
		*m.journal = append(*m.journal, entry)
	}
}

func (m *profileRepoMock) setSubtype(userID, subtype string) {
	m.subtypes[userID] = &subtype
}

func (m *profileRepoMock) GetProfile(_ context.Context, userID string) (*domain.UserProfile, error) {
	profile, ok := m.profiles[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &profile, nil
}

func (m *profileRepoMock) GetRole(_ context.Context, userID string) (string, error) {
	role, ok := m.roles[userID]
	if !ok {
		return "", repository.ErrNotFound
	}
	return role, nil
}

func (m *profileRepoMock) GetEmployeeSubtype(_ context.Context, userID string) (*string, error) {
	if m.subtypeErr != nil {
		return nil, m.subtypeErr
	}
	subtype, ok := m.subtypes[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return subtype, nil
}

func (m *profileRepoMock) SetEmployeeSubtype(_ context.Context, userID string, subtype *string) error {
	if m.setSubtypeErr != nil {
		return m.setSubtypeErr
	}
	m.subtypes[userID] = subtype
	return nil
}

func (m *profileRepoMock) InsertProfile(_ context.Context, profile domain.UserProfile) error {
	if m.insertProfileErr != nil {
		return m.insertProfileErr
	}
	m.profiles[profile.UserID] = profile
	m.roles[profile.UserID] = profile.Role
	return nil
}

func (m *profileRepoMock) DeleteProfile(_ context.Context, userID string) error {
	delete(m.profiles, userID)
	delete(m.roles, userID)
	m.log("delete_profile:" + userID)
	return nil
}

func (m *profileRepoMock) InsertRoleEntity(_ context.Context, entity domain.RoleEntity) (string, error) {
	if m.insertEntityErr != nil {
		return "", m.insertEntityErr
	}
	m.entityCounter++
	id := fmt.Sprintf("entity-%d", m.entityCounter)
	entity.ID = id
	m.entities[id] = entity
	return id, nil
}

func (m *profileRepoMock) DeleteRoleEntity(_ context.Context, _, id string) error {
	delete(m.entities, id)
	m.log("delete_entity:" + id)
	return nil
}

var _ port.ProfileRepository = (*profileRepoMock)(nil)

// cacheMock is a TTL-less in-memory cache.
type cacheMock struct {
	values map[string]string
	getErr error
	setErr error
}

func newCacheMock() *cacheMock {
	return &cacheMock{values: make(map[string]string)}
}

func (m *cacheMock) Get(_ context.Context, key string) (string, bool, error) {
	if m.getErr != nil {
		return "", false, m.getErr
	}
	value, ok := m.values[key]
	return value, ok, nil
}

func (m *cacheMock) Set(_ context.Context, key, value string, _ time.Duration) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.values[key] = value
	return nil
}

func (m *cacheMock) Delete(_ context.Context, key string) error {
	delete(m.values, key)
	return nil
}

var _ port.Cache = (*cacheMock)(nil)

// bindingRepoMock enforces the one-row-per-(external id, channel) shape.
type bindingRepoMock struct {
	bindings map[string]*domain.Binding

	counter int
	inserts int
	rebinds int
}

func newBindingRepoMock() *bindingRepoMock {
	return &bindingRepoMock{bindings: make(map[string]*domain.Binding)}
}

func bindingKey(externalID string, channel domain.Channel) string {
	return externalID + "|" + string(channel)
}

func (m *bindingRepoMock) GetByExternalID(_ context.Context, externalID string, channel domain.Channel) (*domain.Binding, error) {
	binding, ok := m.bindings[bindingKey(externalID, channel)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *binding
	return &copy, nil
}

func (m *bindingRepoMock) GetByUser(_ context.Context, userID string, channel domain.Channel) (*domain.Binding, error) {
	for _, binding := range m.bindings {
		if binding.Channel == channel && binding.UserID != nil && *binding.UserID == userID && binding.Status == domain.BindingStatusActive {
			copy := *binding
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *bindingRepoMock) ListByUser(_ context.Context, userID string, includeUnlinked bool) ([]domain.Binding, error) {
	var out []domain.Binding
	for _, binding := range m.bindings {
		if binding.UserID == nil || *binding.UserID != userID {
			continue
		}
		if !includeUnlinked && binding.Status != domain.BindingStatusActive {
			continue
		}
		out = append(out, *binding)
	}
	return out, nil
}

func (m *bindingRepoMock) Insert(_ context.Context, binding domain.Binding) (*domain.Binding, error) {
	m.counter++
	m.inserts++
	binding.ID = fmt.Sprintf("binding-%d", m.counter)
	now := time.Now().UTC()
	binding.CreatedAt = now
	binding.UpdatedAt = now
	stored := binding
	m.bindings[bindingKey(binding.ExternalID, binding.Channel)] = &stored
	copy := stored
	return &copy, nil
}

func (m *bindingRepoMock) Rebind(_ context.Context, externalID string, channel domain.Channel, userID string, profile domain.ExternalProfile, at time.Time) (*domain.Binding, error) {
	binding, ok := m.bindings[bindingKey(externalID, channel)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	m.rebinds++
	owner := userID
	binding.UserID = &owner
	binding.Status = domain.BindingStatusActive
	binding.DisplayName = profile.DisplayName
	binding.AvatarURL = profile.AvatarURL
	binding.Email = profile.Email
	binding.BoundAt = at
	binding.UnboundAt = nil
	binding.UpdatedAt = at
	copy := *binding
	return &copy, nil
}

func (m *bindingRepoMock) Unlink(_ context.Context, userID string, channel domain.Channel, at time.Time) error {
	for _, binding := range m.bindings {
		if binding.Channel == channel && binding.UserID != nil && *binding.UserID == userID && binding.Status == domain.BindingStatusActive {
			binding.UserID = nil
			binding.Status = domain.BindingStatusUnlinked
			unbound := at
			binding.UnboundAt = &unbound
			binding.UpdatedAt = at
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *bindingRepoMock) UpdatePreferences(_ context.Context, userID string, channel domain.Channel, prefs domain.NotificationPreferences) error {
	for _, binding := range m.bindings {
		if binding.Channel == channel && binding.UserID != nil && *binding.UserID == userID && binding.Status == domain.BindingStatusActive {
			binding.Preferences = prefs
			return nil
		}
	}
	return repository.ErrNotFound
}

var _ port.BindingRepository = (*bindingRepoMock)(nil)

// stateStoreMock issues predictable single-use state tokens.
type stateStoreMock struct {
	states  map[string]domain.OAuthState
	counter int
}

func newStateStoreMock() *stateStoreMock {
	return &stateStoreMock{states: make(map[string]domain.OAuthState)}
}

func (m *stateStoreMock) Issue(_ context.Context, state domain.OAuthState, _ time.Duration) (string, error) {
	m.counter++
	token := fmt.Sprintf("state-%d", m.counter)
	m.states[token] = state
	return token, nil
}

func (m *stateStoreMock) Consume(_ context.Context, token string) (*domain.OAuthState, error) {
	state, ok := m.states[token]
	if !ok {
		return nil, repository.ErrNotFound
	}
	delete(m.states, token)
	return &state, nil
}

var _ port.OAuthStateStore = (*stateStoreMock)(nil)

// oauthProviderMock fakes the social login provider.
type oauthProviderMock struct {
	configured  map[domain.Channel]bool
	exchangeErr error
	profileErr  error
	profile     *domain.ExternalProfile
	revoked     int
}

func (m *oauthProviderMock) IsConfigured(channel domain.Channel) bool {
	if m.configured == nil {
		return true
	}
	return m.configured[channel]
}

func (m *oauthProviderMock) AuthorizationURL(state string, channel domain.Channel) (string, error) {
	return "https://provider.example/authorize?state=" + state + "&channel=" + string(channel), nil
}

func (m *oauthProviderMock) Exchange(_ context.Context, _ string, _ domain.Channel) (*domain.OAuthTokens, error) {
	if m.exchangeErr != nil {
		return nil, m.exchangeErr
	}
	return &domain.OAuthTokens{AccessToken: "provider-access", IDToken: "provider-id-token"}, nil
}

func (m *oauthProviderMock) Profile(_ context.Context, _ *domain.OAuthTokens) (*domain.ExternalProfile, error) {
	if m.profileErr != nil {
		return nil, m.profileErr
	}
	return m.profile, nil
}

func (m *oauthProviderMock) Revoke(_ context.Context, _ string, _ domain.Channel) error {
	m.revoked++
	return nil
}

var _ port.OAuthProvider = (*oauthProviderMock)(nil)

// eventRecorder captures published events for assertions.
type eventRecorder struct {
	registered       []domain.UserRegisteredEvent
	sessionsCreated  []domain.SessionCreatedEvent
	sessionsRevoked  []domain.SessionRevokedEvent
	bindingsCreated  []domain.BindingCreatedEvent
	bindingsUnlinked []domain.BindingUnlinkedEvent
}

func (r *eventRecorder) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	r.registered = append(r.registered, event)
	return nil
}

func (r *eventRecorder) PublishSessionCreated(_ context.Context, event domain.SessionCreatedEvent) error {
	r.sessionsCreated = append(r.sessionsCreated, event)
	return nil
}

func (r *eventRecorder) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	r.sessionsRevoked = append(r.sessionsRevoked, event)
	return nil
}

func (r *eventRecorder) PublishBindingCreated(_ context.Context, event domain.BindingCreatedEvent) error {
	r.bindingsCreated = append(r.bindingsCreated, event)
	return nil
}

func (r *eventRecorder) PublishBindingUnlinked(_ context.Context, event domain.BindingUnlinkedEvent) error {
	r.bindingsUnlinked = append(r.bindingsUnlinked, event)
	return nil
}

var _ port.EventPublisher = (*eventRecorder)(nil)

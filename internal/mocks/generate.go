// Package mocks provides gomock implementations of the security kernel ports.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	realm := mocks.NewMockRealm(ctrl)
//	realm.EXPECT().Name().Return("ldap").AnyTimes()
//	realm.EXPECT().Authenticate(gomock.Any(), gomock.Any()).Return(info, nil)
package mocks

// MockRealm: Name, Supports, Authenticate, AuthorizationInfo
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=realm_mock.go github.com/target/gatekeeper/internal/ports Realm

// MockAuthorizationCache: Get, Set, Delete
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=authorization_cache_mock.go github.com/target/gatekeeper/internal/ports AuthorizationCache

// MockAccountStore: account persistence used by the Postgres realm
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=account_store_mock.go github.com/target/gatekeeper/internal/ports AccountStore

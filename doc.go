// Package authcore is an embeddable authentication and session engine for
// multi-tenant services.
//
// The entry point is the Engine, assembled through the Builder:
//
//	eng, err := authcore.New().
//		WithConfig(cfg).
//		WithStore(store).
//		WithRedis(redisClient).
//		WithMailer(mailer).
//		Build()
//
// The engine owns the full credential lifecycle: registration with email
// verification, password login behind a brute-force guard, dual-secret JWT
// pairs with single-use refresh rotation and reuse detection, a Redis
// blacklist for pre-expiry access revocation, role-based permission
// resolution, password reset, and a three-method second factor (TOTP,
// emailed codes, single-use backup codes).
//
// Durable state lives behind the Store interface; package store/sqlite
// ships a reference implementation. Ephemeral state (the access token
// blacklist and pending email challenges) lives in Redis.
package authcore

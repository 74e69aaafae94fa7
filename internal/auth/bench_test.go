package auth

import "testing"

// Argon2id is tuned to be slow on purpose; these exist to watch for
// parameter regressions, not to chase throughput.

func BenchmarkHashPassword(b *testing.B) {
	for i := 0; i < b.N; i++ {
		HashPassword("loft-thermostat-21C") //nolint:errcheck // benchmark
	}
}

func BenchmarkVerifyPassword(b *testing.B) {
	hash, err := HashPassword("loft-thermostat-21C")
	if err != nil {
		b.Fatalf("HashPassword: %v", err)
	}

	for i := 0; i < b.N; i++ {
		VerifyPassword("loft-thermostat-21C", hash) //nolint:errcheck // benchmark
	}
}

// Token issue and parse sit on the request hot path.

func BenchmarkGenerateAccessToken(b *testing.B) {
	user := &User{ID: "usr-bench", Role: RoleAdmin}
	secret := "benchmark-secret-key-32-bytes-xx"

	for i := 0; i < b.N; i++ {
		GenerateAccessToken(user, secret, 15) //nolint:errcheck // benchmark
	}
}

func BenchmarkParseToken(b *testing.B) {
	user := &User{ID: "usr-bench", Role: RoleAdmin}
	secret := "benchmark-secret-key-32-bytes-xx"

	token, err := GenerateAccessToken(user, secret, 15)
	if err != nil {
		b.Fatalf("GenerateAccessToken: %v", err)
	}

	for i := 0; i < b.N; i++ {
		ParseToken(token, secret) //nolint:errcheck // benchmark
	}
}

func BenchmarkGenerateRefreshToken(b *testing.B) {
	for i := 0; i < b.N; i++ {
		GenerateRefreshToken() //nolint:errcheck // benchmark
	}
}

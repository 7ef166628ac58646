package password

import "testing"

func BenchmarkHash_DefaultConfig(b *testing.B) {
	h, err := New(DefaultConfig().Params)
	if err != nil {
		b.Fatalf("New error: %v", err)
	}
	pw := []byte("this is a strong password 123!")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := h.Hash(pw, testPepper); err != nil {
			b.Fatalf("Hash error: %v", err)
		}
	}
}

func BenchmarkVerify_DefaultConfig(b *testing.B) {
	h, err := New(DefaultConfig().Params)
	if err != nil {
		b.Fatalf("New error: %v", err)
	}
	pw := []byte("this is a strong password 123!")
	enc, err := h.Hash(pw, testPepper)
	if err != nil {
		b.Fatalf("Hash error: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := h.Verify(pw, enc, testPepper); err != nil {
			b.Fatalf("Verify failed: %v", err)
		}
	}
}

package support

import "testing"

func TestGetEnv(t *testing.T) {
	t.Setenv("IPCOLLECTOR_TEST_ENV", "value")
	if got := GetEnv("IPCOLLECTOR_TEST_ENV", "fallback"); got != "value" {
		t.Fatalf("GetEnv returned %s, want value", got)
	}

	if got := GetEnv("IPCOLLECTOR_TEST_ENV_MISSING", "fallback"); got != "fallback" {
		t.Fatalf("GetEnv returned %s, want fallback", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("IPCOLLECTOR_TEST_INT", "42")
	if got := GetEnvInt("IPCOLLECTOR_TEST_INT", 7); got != 42 {
		t.Fatalf("GetEnvInt returned %d, want 42", got)
	}

	t.Setenv("IPCOLLECTOR_TEST_INT_BAD", "forty-two")
	if got := GetEnvInt("IPCOLLECTOR_TEST_INT_BAD", 7); got != 7 {
		t.Fatalf("GetEnvInt with invalid value returned %d, want 7", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	cases := []struct {
		value    string
		fallback bool
		want     bool
	}{
		{"true", false, true},
		{" 1 ", false, true},
		{"FALSE", true, false},
		{"maybe", true, true},
	}

	for _, tc := range cases {
		t.Setenv("IPCOLLECTOR_TEST_BOOL", tc.value)
		if got := GetEnvBool("IPCOLLECTOR_TEST_BOOL", tc.fallback); got != tc.want {
			t.Errorf("GetEnvBool(%q, %v) = %v, want %v", tc.value, tc.fallback, got, tc.want)
		}
	}

	if got := GetEnvBool("IPCOLLECTOR_TEST_BOOL_MISSING", true); !got {
		t.Fatal("GetEnvBool for missing key should return the fallback")
	}
}

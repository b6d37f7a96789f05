package config

import (
	"os"
	"path/filepath"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	vars := []string{
		"SSH_PORT", "SSH_HOST_KEY_PATH", "P2P_PORT", "BOOTSTRAP_NODES",
		"DEFAULT_ROOM", "MAX_MESSAGE_SIZE", "MAX_MESSAGES_IN_MEMORY",
		"RATE_LIMIT", "MAX_NICK_LENGTH", "MAX_ROOM_NAME_LENGTH", "IS_BOOTSTRAP",
		"LOG_LEVEL", "LOG_FILE",
	}
	for _, v := range vars {
		t.Setenv(v, "")
		os.Unsetenv(v)
	}
}

func TestDefaults(t *testing.T) {
	d := Defaults()
	if d.SSHPort != 2222 || d.P2PPort != 4001 || d.DefaultRoom != "lobby" {
		t.Fatalf("unexpected defaults: %+v", d)
	}
	if d.MaxMessageSize != 4096 || d.MaxMessagesInMem != 100 || d.RateLimit != 10 {
		t.Fatalf("unexpected defaults: %+v", d)
	}
	if d.MaxNickLength != 32 || d.MaxRoomNameLength != 32 || d.IsBootstrap {
		t.Fatalf("unexpected defaults: %+v", d)
	}
	if d.LogLevel != "info" || d.LogFile != "" {
		t.Fatalf("unexpected defaults: %+v", d)
	}
}

func assertEqualsDefaults(t *testing.T, cfg Config) {
	t.Helper()
	d := Defaults()
	if cfg.SSHPort != d.SSHPort || cfg.SSHHostKeyPath != d.SSHHostKeyPath ||
		cfg.P2PPort != d.P2PPort || cfg.DefaultRoom != d.DefaultRoom ||
		cfg.MaxMessageSize != d.MaxMessageSize || cfg.MaxMessagesInMem != d.MaxMessagesInMem ||
		cfg.RateLimit != d.RateLimit || cfg.MaxNickLength != d.MaxNickLength ||
		cfg.MaxRoomNameLength != d.MaxRoomNameLength || cfg.IsBootstrap != d.IsBootstrap ||
		cfg.LogLevel != d.LogLevel || cfg.LogFile != d.LogFile ||
		len(cfg.BootstrapNodes) != len(d.BootstrapNodes) {
		t.Fatalf("got %+v, want defaults %+v", cfg, d)
	}
}

func TestLoadWithNoYamlOrEnvReturnsDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertEqualsDefaults(t, cfg)
}

func TestLoadMissingYamlPathIsNotAnError(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertEqualsDefaults(t, cfg)
}

func TestLoadYamlOverridesDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "whisper.yaml")
	yaml := "ssh_port: 2022\ndefault_room: general\nbootstrap_nodes:\n  - /dns4/a.example/tcp/4001/p2p/abc\n"
	if err := os.WriteFile(path, []byte(yaml), 0600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SSHPort != 2022 || cfg.DefaultRoom != "general" {
		t.Fatalf("yaml override didn't apply: %+v", cfg)
	}
	if len(cfg.BootstrapNodes) != 1 || cfg.BootstrapNodes[0] != "/dns4/a.example/tcp/4001/p2p/abc" {
		t.Fatalf("bootstrap_nodes didn't apply: %+v", cfg.BootstrapNodes)
	}
	if cfg.P2PPort != Defaults().P2PPort {
		t.Fatalf("unset yaml fields should keep defaults, got P2PPort=%d", cfg.P2PPort)
	}
}

func TestLoadRejectsMalformedYaml(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("ssh_port: [this is not an int"), 0600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for malformed yaml")
	}
}

func TestApplyEnvOverridesEveryField(t *testing.T) {
	clearEnv(t)
	t.Setenv("SSH_PORT", "2023")
	t.Setenv("SSH_HOST_KEY_PATH", "/tmp/host.key")
	t.Setenv("P2P_PORT", "4100")
	t.Setenv("BOOTSTRAP_NODES", "/ip4/1.2.3.4/tcp/4001/p2p/a, /ip4/5.6.7.8/tcp/4001/p2p/b")
	t.Setenv("DEFAULT_ROOM", "overflow")
	t.Setenv("MAX_MESSAGE_SIZE", "8192")
	t.Setenv("MAX_MESSAGES_IN_MEMORY", "250")
	t.Setenv("RATE_LIMIT", "20")
	t.Setenv("MAX_NICK_LENGTH", "16")
	t.Setenv("MAX_ROOM_NAME_LENGTH", "64")
	t.Setenv("IS_BOOTSTRAP", "true")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FILE", "/tmp/whisper.log")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := Config{
		SSHPort:           2023,
		SSHHostKeyPath:    "/tmp/host.key",
		P2PPort:           4100,
		BootstrapNodes:    []string{"/ip4/1.2.3.4/tcp/4001/p2p/a", "/ip4/5.6.7.8/tcp/4001/p2p/b"},
		DefaultRoom:       "overflow",
		MaxMessageSize:    8192,
		MaxMessagesInMem:  250,
		RateLimit:         20,
		MaxNickLength:     16,
		MaxRoomNameLength: 64,
		IsBootstrap:       true,
		LogLevel:          "debug",
		LogFile:           "/tmp/whisper.log",
	}

	if cfg.SSHPort != want.SSHPort || cfg.SSHHostKeyPath != want.SSHHostKeyPath ||
		cfg.P2PPort != want.P2PPort || cfg.DefaultRoom != want.DefaultRoom ||
		cfg.MaxMessageSize != want.MaxMessageSize || cfg.MaxMessagesInMem != want.MaxMessagesInMem ||
		cfg.RateLimit != want.RateLimit || cfg.MaxNickLength != want.MaxNickLength ||
		cfg.MaxRoomNameLength != want.MaxRoomNameLength || cfg.IsBootstrap != want.IsBootstrap ||
		cfg.LogLevel != want.LogLevel || cfg.LogFile != want.LogFile {
		t.Fatalf("got %+v, want %+v", cfg, want)
	}
	if len(cfg.BootstrapNodes) != 2 || cfg.BootstrapNodes[0] != want.BootstrapNodes[0] || cfg.BootstrapNodes[1] != want.BootstrapNodes[1] {
		t.Fatalf("bootstrap nodes: got %v, want %v", cfg.BootstrapNodes, want.BootstrapNodes)
	}
}

func TestApplyEnvIgnoresUnparseableInts(t *testing.T) {
	clearEnv(t)
	t.Setenv("SSH_PORT", "not-a-number")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SSHPort != Defaults().SSHPort {
		t.Fatalf("malformed env int should leave default in place, got %d", cfg.SSHPort)
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := splitAndTrim(" a , b,c ,, d")
	want := []string{"a", "b", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestSplitAndTrimEmptyString(t *testing.T) {
	got := splitAndTrim("")
	if len(got) != 0 {
		t.Fatalf("got %v, want empty slice", got)
	}
}

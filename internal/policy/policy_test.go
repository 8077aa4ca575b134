package policy

import "testing"

func TestCheckSSHCommand_AllowsAllowlistedReadOnlyCommands(t *testing.T) {
	for _, cmd := range []string{"uptime", "whoami", "id", "hostname", "date", "ping -c 3 example.com", "ls -la /var/log", "docker ps"} {
		if err := CheckSSHCommand(cmd); err != nil {
			t.Errorf("expected %q to be allowed, got error: %v", cmd, err)
		}
	}
}

func TestCheckSSHCommand_RejectsMetacharactersEvenIfPrefixMatches(t *testing.T) {
	for _, cmd := range []string{"uptime; rm -rf /", "uptime && cat /etc/passwd", "uptime | mail evil@example.com", "uptime `whoami`"} {
		if err := CheckSSHCommand(cmd); err == nil {
			t.Errorf("expected %q to be blocked", cmd)
		}
	}
}

func TestCheckSSHCommand_RejectsCommandNotInAllowedSet(t *testing.T) {
	if err := CheckSSHCommand("rm -rf /"); err == nil {
		t.Error("expected rm -rf / to be blocked")
	}
}

func TestCheckWebFetchURL_AllowsPublicHTTPS(t *testing.T) {
	if err := CheckWebFetchURL("https://example.com/status", "http", false); err != nil {
		t.Errorf("expected public https url to be allowed, got: %v", err)
	}
}

func TestCheckWebFetchURL_RejectsNonHTTPScheme(t *testing.T) {
	if err := CheckWebFetchURL("file:///etc/passwd", "http", false); err == nil {
		t.Error("expected file:// scheme to be blocked")
	}
}

func TestCheckWebFetchURL_RejectsLoopbackAndPrivateAddresses(t *testing.T) {
	for _, u := range []string{"http://127.0.0.1/admin", "http://169.254.169.254/latest/meta-data", "http://10.0.0.5/", "http://192.168.1.1/"} {
		if err := CheckWebFetchURL(u, "http", false); err == nil {
			t.Errorf("expected %q to be blocked", u)
		}
	}
}

func TestCheckWebFetchURL_RejectsThisNetworkAddresses(t *testing.T) {
	for _, u := range []string{"http://0.1.2.3/", "http://0.255.255.255/", "http://0.0.0.0/"} {
		if err := CheckWebFetchURL(u, "http", false); err == nil {
			t.Errorf("expected %q to be blocked", u)
		}
	}
}

func TestCheckWebFetchURL_RejectsBlockedHostnameSuffixes(t *testing.T) {
	for _, u := range []string{"http://localhost/", "http://foo.internal/", "http://metadata.google.internal/latest"} {
		if err := CheckWebFetchURL(u, "http", false); err == nil {
			t.Errorf("expected %q to be blocked", u)
		}
	}
}

func TestCheckWebFetchURL_BrowserModeRequiresApproval(t *testing.T) {
	if err := CheckWebFetchURL("https://example.com/", "browser", false); err == nil {
		t.Error("expected unapproved browser mode to be blocked")
	}
	if err := CheckWebFetchURL("https://example.com/", "browser", true); err != nil {
		t.Errorf("expected approved browser mode to be allowed, got: %v", err)
	}
}

package catalog

import "testing"

func TestServerPrefixNamespaceRoundTrip(t *testing.T) {
	t.Parallel()

	ns := ServerPrefixNamespace{}
	name := ns.ToolName("files", "read_file")
	if name != "files__read_file" {
		t.Fatalf("ToolName() = %q, expected files__read_file", name)
	}

	serverID, toolName, ok := ns.Split(name)
	if !ok || serverID != "files" || toolName != "read_file" {
		t.Fatalf("Split(%q) = %q, %q, %v", name, serverID, toolName, ok)
	}
}

func TestServerPrefixNamespaceSplitRejectsMalformedNames(t *testing.T) {
	t.Parallel()

	ns := ServerPrefixNamespace{}
	for _, name := range []string{"", "plainname", "__tool", "server__", "__"} {
		if _, _, ok := ns.Split(name); ok {
			t.Errorf("Split(%q) accepted a malformed name", name)
		}
	}
}

func TestServerPrefixNamespaceCustomSeparator(t *testing.T) {
	t.Parallel()

	ns := ServerPrefixNamespace{Separator: ":"}
	name := ns.ToolName("files", "read")
	if name != "files:read" {
		t.Fatalf("ToolName() = %q, expected files:read", name)
	}
	serverID, toolName, ok := ns.Split("files:read")
	if !ok || serverID != "files" || toolName != "read" {
		t.Fatalf("Split() = %q, %q, %v", serverID, toolName, ok)
	}
}

func TestSplitKeepsSeparatorInToolName(t *testing.T) {
	t.Parallel()

	// Tool names may themselves contain the separator; only the first
	// occurrence delimits the server prefix.
	ns := ServerPrefixNamespace{}
	serverID, toolName, ok := ns.Split("files__read__cached")
	if !ok || serverID != "files" || toolName != "read__cached" {
		t.Fatalf("Split() = %q, %q, %v", serverID, toolName, ok)
	}
}

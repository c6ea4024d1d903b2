package testing

// WithFiles pre-populates the mock file table.
// Keys are paths, values are file contents.
func WithFiles(client *MockClient, files map[string]string) {
	for path, content := range files {
		client.SetFile(path, content)
	}
}

// ProcStatIdle and ProcStatBusy are two /proc/stat samples 25% busy apart:
// 100 more busy jiffies over 400 more total.
const (
	ProcStatIdle = "cpu  1000 0 1000 8000 0 0 0 0 0 0\n"
	ProcStatBusy = "cpu  1050 0 1050 8300 0 0 0 0 0 0\n"
)

// ProcMeminfo reports 16 GiB total with 4 GiB available.
const ProcMeminfo = `MemTotal:       16777216 kB
MemFree:         2097152 kB
MemAvailable:    4194304 kB
Buffers:          524288 kB
Cached:          1048576 kB
`

// WithLinuxHost loads /proc files for a healthy Linux box.
func WithLinuxHost(client *MockClient) {
	WithFiles(client, map[string]string{
		"/proc/stat":    ProcStatIdle,
		"/proc/meminfo": ProcMeminfo,
	})
}

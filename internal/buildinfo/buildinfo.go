package buildinfo

// Set via -ldflags "-X dispatchdesk/internal/buildinfo.Version=...".
var (
    Version = "dev"
    Commit  = ""
    BuiltAt = ""
)

func Info() map[string]string {
    return map[string]string{
        "service": "dispatchd",
        "version": Version,
        "commit":  Commit,
        "builtAt": BuiltAt,
    }
}

package logcolors

// ANSI color codes for log prefixes
const (
	Reset  = "\033[0m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Blue   = "\033[34m"
	Purple = "\033[35m"
	Cyan   = "\033[36m"
)

// Cache-related log prefixes
const (
	LogCacheInit     = Blue + "[Cache:Init]" + Reset
	LogCache         = Blue + "[Cache]" + Reset
	LogCacheSweep    = Blue + "[Cache:Sweep]" + Reset
	LogCacheBackup   = Blue + "[Cache:Backup]" + Reset
	LogCacheClear    = Blue + "[Cache:Clear]" + Reset
	LogCacheRestore  = Blue + "[Cache:Restore]" + Reset
	LogCacheFault    = Red + "[Cache:Fault]" + Reset
	LogCacheLyrics   = Green + "[Cache:Lyrics]" + Reset
	LogCacheNegative = Cyan + "[Cache:Negative]" + Reset
	LogCacheSearch   = Green + "[Cache:Search]" + Reset
)

// Rate limiting and auth log prefixes
const (
	LogRateLimit = Purple + "[RateLimit]" + Reset
	LogAdmin     = Purple + "[Admin]" + Reset
)

// CircuitBreakerPrefix returns a colored circuit breaker prefix with the given name
func CircuitBreakerPrefix(name string) string {
	return Purple + "[CircuitBreaker:" + name + "]" + Reset
}

// UpstreamPrefix returns a colored prefix for an upstream service, e.g. [Upstream:lrclib]
func UpstreamPrefix(name string) string {
	return Cyan + "[Upstream:" + name + "]" + Reset
}

// Server/Init log prefixes
const (
	LogServer = Green + "[Server]" + Reset
	LogConfig = Cyan + "[Config]" + Reset
	LogHTTP   = Cyan + "[HTTP]" + Reset
	LogSentry = Purple + "[Sentry]" + Reset
)

// Service log prefixes
const (
	LogLyrics = Blue + "[Lyrics]" + Reset
	LogSearch = Blue + "[Search]" + Reset
	LogImage  = Blue + "[Image]" + Reset
)

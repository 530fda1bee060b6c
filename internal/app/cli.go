package app

import "github.com/spf13/pflag"

// RegisterFlags registers the server flags on the given FlagSet
func RegisterFlags(flags *pflag.FlagSet) {
	flags.StringP("transport", "t", "", "Transport type: stdio or sse")
	flags.StringP("host", "H", "", "Host for SSE transport")
	flags.IntP("port", "p", 0, "Port for SSE transport")
	flags.StringP("auth-type", "a", "", "Authentication type: none, basic, or apikey")
	flags.StringP("auth-basic-username", "u", "", "Basic auth username")
	flags.StringP("auth-basic-password", "P", "", "Basic auth password")
	flags.StringSliceP("auth-api-keys", "k", nil, "API keys (comma-separated)")
	RegisterBookwormFlags(flags)
}

// RegisterBookwormFlags registers the flags describing the counting service.
// The query and fields subcommands register only these.
func RegisterBookwormFlags(flags *pflag.FlagSet) {
	flags.StringP("endpoint", "e", "", "Bookworm API endpoint URL")
	flags.StringP("database", "d", "", "Default Bookworm database")
	flags.StringSlice("counttype", nil, "Default count types (comma-separated)")
	flags.String("words-collation", "", "Words collation: Case_Sensitive or Case_Insensitive")
	flags.Bool("verify-fields", false, "Check field names against the remote catalog")
	flags.Duration("timeout", 0, "Timeout for requests to the counting service")
	flags.String("cache-dir", "", "Directory for cached field values")
	flags.Int("max-rows", 0, "Maximum rows returned by the run_query tool")
}

// Gateway relays Anthropic Messages API traffic with pooled credentials
// and publishes one usage event per request.
//
// Usage:
//
//	# Start with defaults and keys from ANTHROPIC_API_KEYS
//	gateway serve
//
//	# Start with a config file and a dotenv file
//	gateway serve --config gateway.yaml --env-file .env
//
//	# Print version information
//	gateway version --check
package main

func main() {
	Execute()
}

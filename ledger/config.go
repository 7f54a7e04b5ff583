package ledger

import "fmt"

// RPCConfig holds the connection parameters for a node's JSON-RPC interface.
type RPCConfig struct {
	URL      string `json:"url"`
	User     string `json:"user"`
	Password string `json:"password"`
	Network  string `json:"network"`
}

// NetworkPresets contains default RPC endpoints for local test networks.
// Mainnet has no preset and must be configured explicitly.
var NetworkPresets = map[string]RPCConfig{
	"regtest": {URL: "http://localhost:18332", User: "contribsplit", Password: "contribsplit"},
	"testnet": {URL: "http://localhost:18332", User: "contribsplit", Password: "contribsplit"},
}

// Environment variables consulted by ResolveConfig.
const (
	EnvRPCURL  = "CONTRIBSPLIT_RPCURL"
	EnvRPCUser = "CONTRIBSPLIT_RPCUSER"
	EnvRPCPass = "CONTRIBSPLIT_RPCPASS"
)

// ResolveConfig merges RPC configuration with decreasing priority:
// explicit settings, then environment variables, then network presets.
func ResolveConfig(explicit *RPCConfig, env map[string]string, network string) (*RPCConfig, error) {
	result := RPCConfig{Network: network}

	if preset, ok := NetworkPresets[network]; ok {
		result = preset
		result.Network = network
	}

	if v := env[EnvRPCURL]; v != "" {
		result.URL = v
	}
	if v := env[EnvRPCUser]; v != "" {
		result.User = v
	}
	if v := env[EnvRPCPass]; v != "" {
		result.Password = v
	}

	if explicit != nil {
		if explicit.URL != "" {
			result.URL = explicit.URL
		}
		if explicit.User != "" {
			result.User = explicit.User
		}
		if explicit.Password != "" {
			result.Password = explicit.Password
		}
	}

	if result.URL == "" {
		return nil, fmt.Errorf("%w: %s requires an rpc url (set rpcurl or %s)", ErrMissingRPCConfig, network, EnvRPCURL)
	}
	return &result, nil
}

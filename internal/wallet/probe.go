package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
)

// NetworkInfo describes the RPC endpoint the chain is attached to.
type NetworkInfo struct {
	RPCEndpoint   string `json:"rpc_endpoint"`
	SolanaVersion string `json:"solana_version"`
	CurrentSlot   uint64 `json:"current_slot"`
	Reachable     bool   `json:"reachable"`
	Error         string `json:"error,omitempty"`
}

// Probe asks the configured Solana RPC node for its version and current
// slot. It never fails the caller; an unreachable node is reported in the
// result.
func Probe(ctx context.Context, endpoint string) NetworkInfo {
	info := NetworkInfo{RPCEndpoint: endpoint}
	if endpoint == "" {
		info.Error = "no rpc endpoint configured"
		return info
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client := rpc.New(endpoint)
	version, err := client.GetVersion(ctx)
	if err != nil {
		info.Error = fmt.Sprintf("get version: %v", err)
		return info
	}
	slot, err := client.GetSlot(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		info.Error = fmt.Sprintf("get slot: %v", err)
		return info
	}
	info.SolanaVersion = version.SolanaCore
	info.CurrentSlot = slot
	info.Reachable = true
	return info
}

package abis

import "github.com/ethereum/go-ethereum/accounts/abi"

// Method names on the governance contracts.
const (
	MethodProposalVotes      = "proposalVotes"
	MethodCollectionFinished = "collectionFinished"
)

// GetGovernanceABI returns the read-only subset of the hub governor and spoke
// contract ABIs. Both expose proposalVotes with named outputs; only the hub
// exposes collectionFinished.
func GetGovernanceABI() (*abi.ABI, error) {
	return ParseABI(`[
		{
			"inputs": [{"internalType": "uint256", "name": "proposalId", "type": "uint256"}],
			"name": "proposalVotes",
			"outputs": [
				{"internalType": "uint256", "name": "forVotes", "type": "uint256"},
				{"internalType": "uint256", "name": "againstVotes", "type": "uint256"},
				{"internalType": "uint256", "name": "abstainVotes", "type": "uint256"}
			],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
			"name": "collectionFinished",
			"outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)
}

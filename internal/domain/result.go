package domain

type NodeResult struct {
	Success         bool        `json:"success"`
	Output          interface{} `json:"output,omitempty"`
	Error           string      `json:"error,omitempty"`
	TransactionHash string      `json:"transactionHash,omitempty"`
}

func Succeeded(output interface{}) *NodeResult {
	return &NodeResult{Success: true, Output: output}
}

func SucceededWithTx(output interface{}, txHash string) *NodeResult {
	return &NodeResult{Success: true, Output: output, TransactionHash: txHash}
}

func Failed(message string) *NodeResult {
	return &NodeResult{Success: false, Error: message}
}

func FailedWithErr(err error) *NodeResult {
	if err == nil {
		return Failed("unknown error")
	}
	return Failed(err.Error())
}

// TxResult is the shared result contract of the transfer and swap adapters.
type TxResult struct {
	Success         bool   `json:"success"`
	TransactionHash string `json:"transactionHash,omitempty"`
	Error           string `json:"error,omitempty"`
}

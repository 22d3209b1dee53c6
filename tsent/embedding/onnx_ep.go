package embedding

import (
	"strconv"
	"strings"
)

// ONNX Runtime settings shared by every onnx encoder in the process.
var (
	onnxEP        = "cpu"
	onnxDeviceID  int
	onnxBatchSize = 32
)

// SetONNXBatchSize caps how many rows go through one session run.
func SetONNXBatchSize(n int) {
	if n > 0 {
		onnxBatchSize = n
	}
}

// SetONNXExecutionProvider selects the ONNX Runtime backend. ep is one of
// cpu, cuda, tensorrt, coreml or dml, optionally followed by ":<device>".
func SetONNXExecutionProvider(ep string) {
	ep = strings.ToLower(strings.TrimSpace(ep))
	name, dev, found := strings.Cut(ep, ":")
	onnxDeviceID = 0
	if found {
		if id, err := strconv.Atoi(dev); err == nil && id >= 0 {
			onnxDeviceID = id
		}
	}
	if name == "" {
		name = "cpu"
	}
	onnxEP = name
}

// pooledOutputName is the BERT export's designated sentence representation.
const pooledOutputName = "pooler_output"

type outputInfo struct {
	name  string
	rank  int
	float bool
}

// pickOutput chooses the encoder output to read. pooler_output wins, then
// any rank-2 float output; otherwise the first float output, which Encode
// mean-pools over the attention mask.
func pickOutput(outs []outputInfo) (string, bool) {
	fallback := ""
	for _, o := range outs {
		if o.float && strings.EqualFold(o.name, pooledOutputName) {
			return o.name, true
		}
	}
	for _, o := range outs {
		if !o.float {
			continue
		}
		if o.rank == 2 {
			return o.name, true
		}
		if fallback == "" {
			fallback = o.name
		}
	}
	return fallback, fallback != ""
}

//go:build onnx

package embedding

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// onnxEncoder runs an exported BERT encoder through ONNX Runtime. Rank-3
// outputs ([batch, seq, hidden]) are mean-pooled over the attention mask;
// rank-2 outputs are taken as already pooled.
type onnxEncoder struct {
	dims        int
	modelPath   string
	mu          sync.Mutex
	session     *ort.DynamicAdvancedSession
	inputNames  []string
	outputNames []string
}

func newONNXEncoder(dims int, modelPath string) Encoder {
	return &onnxEncoder{dims: dims, modelPath: modelPath}
}

func (p *onnxEncoder) Dimensions() int { return p.dims }

func (p *onnxEncoder) ensureSession() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session != nil {
		return nil
	}
	if p.modelPath == "" {
		return errors.New("onnx encoder needs pretrained.modelPath")
	}
	if err := initRuntime(); err != nil {
		return err
	}
	inputs, outputs, err := ioNames(p.modelPath)
	if err != nil {
		return err
	}
	opts, err := sessionOptions()
	if err != nil {
		return err
	}
	if opts != nil {
		defer opts.Destroy()
	}
	s, err := ort.NewDynamicAdvancedSession(p.modelPath, inputs, outputs, opts)
	if err != nil {
		return fmt.Errorf("failed to create onnx session for %s: %w", p.modelPath, err)
	}
	p.session, p.inputNames, p.outputNames = s, inputs, outputs
	return nil
}

func initRuntime() error {
	if ort.IsInitialized() {
		return nil
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize onnx runtime: %w", err)
	}
	return nil
}

// ioNames picks every int64 input (ids, mask, token types) and the output
// chosen by pickOutput.
func ioNames(modelPath string) (inputs, outputs []string, err error) {
	ins, outs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to inspect %s: %w", modelPath, err)
	}
	for _, in := range ins {
		if in.DataType == ort.TensorElementDataTypeInt64 {
			inputs = append(inputs, in.Name)
		}
	}
	infos := make([]outputInfo, 0, len(outs))
	for _, out := range outs {
		infos = append(infos, outputInfo{
			name:  out.Name,
			rank:  len(out.Dimensions),
			float: out.DataType == ort.TensorElementDataTypeFloat,
		})
	}
	name, ok := pickOutput(infos)
	if len(inputs) == 0 || !ok {
		return nil, nil, fmt.Errorf("%s: no int64 inputs or float output", modelPath)
	}
	return inputs, []string{name}, nil
}

// sessionOptions returns nil for the default CPU provider.
func sessionOptions() (*ort.SessionOptions, error) {
	if onnxEP == "cpu" {
		return nil, nil
	}
	o, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	_ = o.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll)
	switch onnxEP {
	case "cuda":
		cu, err := ort.NewCUDAProviderOptions()
		if err != nil {
			break
		}
		_ = cu.Update(map[string]string{"device_id": strconv.Itoa(onnxDeviceID)})
		_ = o.AppendExecutionProviderCUDA(cu)
		_ = cu.Destroy()
	case "tensorrt":
		trt, err := ort.NewTensorRTProviderOptions()
		if err != nil {
			break
		}
		_ = trt.Update(map[string]string{"device_id": strconv.Itoa(onnxDeviceID)})
		_ = o.AppendExecutionProviderTensorRT(trt)
		_ = trt.Destroy()
	case "coreml":
		_ = o.AppendExecutionProviderCoreMLV2(map[string]string{})
	case "dml":
		_ = o.AppendExecutionProviderDirectML(onnxDeviceID)
	}
	return o, nil
}

func (p *onnxEncoder) Encode(ctx context.Context, ids, masks [][]int64) ([][]float32, error) {
	if err := checkShape(ids, masks); err != nil {
		return nil, err
	}
	if err := p.ensureSession(); err != nil {
		return nil, err
	}
	all := make([][]float32, 0, len(ids))
	for i := 0; i < len(ids); i += onnxBatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(i+onnxBatchSize, len(ids))
		vecs, err := p.encodeChunk(ids[i:end], masks[i:end])
		if err != nil {
			return nil, err
		}
		all = append(all, vecs...)
	}
	return all, nil
}

func (p *onnxEncoder) encodeChunk(ids, masks [][]int64) ([][]float32, error) {
	batch := len(ids)
	if batch == 0 {
		return [][]float32{}, nil
	}
	seq := len(ids[0])
	flatIDs := make([]int64, batch*seq)
	flatMask := make([]int64, batch*seq)
	for i := 0; i < batch; i++ {
		copy(flatIDs[i*seq:(i+1)*seq], ids[i])
		copy(flatMask[i*seq:(i+1)*seq], masks[i])
	}
	shape := ort.NewShape(int64(batch), int64(seq))
	idsTensor, err := ort.NewTensor(shape, flatIDs)
	if err != nil {
		return nil, fmt.Errorf("ids tensor: %w", err)
	}
	defer idsTensor.Destroy()
	maskTensor, err := ort.NewTensor(shape, flatMask)
	if err != nil {
		return nil, fmt.Errorf("mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	inVals := make([]ort.Value, len(p.inputNames))
	for i, name := range p.inputNames {
		ln := strings.ToLower(name)
		switch {
		case strings.Contains(ln, "input_ids") || ln == "ids":
			inVals[i] = idsTensor
		case strings.Contains(ln, "attention_mask") || ln == "mask":
			inVals[i] = maskTensor
		default:
			// token_type_ids: single-segment input
			zeroTensor, e := ort.NewTensor(shape, make([]int64, batch*seq))
			if e != nil {
				return nil, fmt.Errorf("alloc zero tensor: %w", e)
			}
			defer zeroTensor.Destroy()
			inVals[i] = zeroTensor
		}
	}
	outs := make([]ort.Value, len(p.outputNames))
	if err := p.session.Run(inVals, outs); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}
	defer func() {
		for _, v := range outs {
			if v != nil {
				v.Destroy()
			}
		}
	}()

	t, ok := outs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type")
	}
	data := t.GetData()
	outShape := t.GetShape()
	vecs := make([][]float32, batch)
	switch len(outShape) {
	case 2:
		cols := int(outShape[1])
		for r := 0; r < batch; r++ {
			raw := make([]float32, cols)
			copy(raw, data[r*cols:(r+1)*cols])
			vecs[r] = AdjustToDims(raw, p.dims)
		}
	case 3:
		steps, hidden := int(outShape[1]), int(outShape[2])
		for r := 0; r < batch; r++ {
			block := data[r*steps*hidden : (r+1)*steps*hidden]
			vecs[r] = AdjustToDims(meanPool(block, masks[r][:steps], hidden), p.dims)
		}
	default:
		return nil, fmt.Errorf("unexpected output rank %d", len(outShape))
	}
	return vecs, nil
}

// ListONNXProviders reports the execution provider this process is
// configured for after checking the runtime loads.
func ListONNXProviders() ([]string, error) {
	if err := initRuntime(); err != nil {
		return nil, err
	}
	return []string{onnxEP}, nil
}

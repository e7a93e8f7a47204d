package neural

import (
	"encoding/json"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// weightsBlob is the portable on-disk form of a network's parameters.
type weightsBlob struct {
	Sizes   []int       `json:"sizes"`
	Weights [][]float64 `json:"weights"` // row-major per layer
	Biases  [][]float64 `json:"biases"`
}

// MarshalWeights serializes the network parameters to a JSON blob.
// Optimizer state is deliberately not persisted; a restored network
// resumes with zero momentum.
func (n *Network) MarshalWeights() ([]byte, error) {
	blob := weightsBlob{Sizes: n.sizes}
	for l := range n.weights {
		blob.Weights = append(blob.Weights, append([]float64(nil), n.weights[l].RawMatrix().Data...))
		blob.Biases = append(blob.Biases, append([]float64(nil), n.biases[l].RawMatrix().Data...))
	}
	return json.Marshal(blob)
}

// UnmarshalWeights restores parameters from a blob produced by
// MarshalWeights. The blob's architecture must match this network.
func (n *Network) UnmarshalWeights(data []byte) error {
	var blob weightsBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return fmt.Errorf("decoding weights blob: %w", err)
	}
	if len(blob.Sizes) != len(n.sizes) {
		return fmt.Errorf("%w: blob has %d layers, network has %d", ErrShapeMismatch, len(blob.Sizes), len(n.sizes))
	}
	for i, s := range blob.Sizes {
		if s != n.sizes[i] {
			return fmt.Errorf("%w: layer %d width %d, want %d", ErrShapeMismatch, i, s, n.sizes[i])
		}
	}
	if len(blob.Weights) != len(n.weights) || len(blob.Biases) != len(n.biases) {
		return fmt.Errorf("%w: blob layer count", ErrShapeMismatch)
	}
	for l := range n.weights {
		in, out := n.weights[l].Dims()
		if len(blob.Weights[l]) != in*out || len(blob.Biases[l]) != out {
			return fmt.Errorf("%w: layer %d parameter count", ErrShapeMismatch, l)
		}
		n.weights[l] = mat.NewDense(in, out, append([]float64(nil), blob.Weights[l]...))
		n.biases[l] = mat.NewDense(1, out, append([]float64(nil), blob.Biases[l]...))
		n.velW[l] = mat.NewDense(in, out, nil)
		n.velB[l] = mat.NewDense(1, out, nil)
	}
	return nil
}

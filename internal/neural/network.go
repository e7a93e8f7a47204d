// Package neural implements the small dense networks backing the learning
// agents: batched forward passes, Huber-loss Q regression, softmax policy
// gradients, and target-network synchronization. All linear algebra runs
// on gonum dense matrices.
package neural

import (
	"errors"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNonFinite is returned when a training step produces NaN or Inf;
	// the step is skipped and no parameters are touched.
	ErrNonFinite = errors.New("non-finite value in training step")
	// ErrShapeMismatch is returned when batch inputs disagree in length.
	ErrShapeMismatch = errors.New("batch shape mismatch")
)

// Config holds optimizer hyperparameters.
type Config struct {
	LearningRate float64
	Momentum     float64
	GradClip     float64 // element-wise gradient bound, 0 disables
	HuberDelta   float64
}

// DefaultConfig returns the standard optimizer settings.
func DefaultConfig() Config {
	return Config{
		LearningRate: 0.001,
		Momentum:     0.9,
		GradClip:     1.0,
		HuberDelta:   1.0,
	}
}

// Network is a fully connected net with ReLU hidden layers and a linear
// output layer. Softmax is applied on demand for policy heads.
type Network struct {
	sizes   []int
	weights []*mat.Dense // layer l: sizes[l] x sizes[l+1]
	biases  []*mat.Dense // 1 x sizes[l+1]
	velW    []*mat.Dense // momentum state
	velB    []*mat.Dense
	cfg     Config
}

// New creates a network with Xavier-initialized weights. sizes lists the
// layer widths input-first; len(sizes) must be at least 2.
func New(sizes []int, cfg Config, rng *rand.Rand) *Network {
	if len(sizes) < 2 {
		panic("network needs at least input and output layers")
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	n := &Network{sizes: append([]int(nil), sizes...), cfg: cfg}
	for l := 0; l < len(sizes)-1; l++ {
		in, out := sizes[l], sizes[l+1]
		scale := math.Sqrt(2.0 / float64(in+out))
		w := mat.NewDense(in, out, nil)
		for i := 0; i < in; i++ {
			for j := 0; j < out; j++ {
				w.Set(i, j, rng.NormFloat64()*scale)
			}
		}
		n.weights = append(n.weights, w)
		n.biases = append(n.biases, mat.NewDense(1, out, nil))
		n.velW = append(n.velW, mat.NewDense(in, out, nil))
		n.velB = append(n.velB, mat.NewDense(1, out, nil))
	}
	return n
}

// InputSize returns the expected feature-vector length.
func (n *Network) InputSize() int { return n.sizes[0] }

// OutputSize returns the network's output width.
func (n *Network) OutputSize() int { return n.sizes[len(n.sizes)-1] }

// Forward runs a single state through the network and returns the raw
// output values.
func (n *Network) Forward(state []float64) []float64 {
	x := mat.NewDense(1, len(state), append([]float64(nil), state...))
	acts := n.forward(x)
	out := acts[len(acts)-1]
	return append([]float64(nil), out.RawRowView(0)...)
}

// Policy returns the softmax of Forward.
func (n *Network) Policy(state []float64) []float64 {
	return softmax(n.Forward(state))
}

// forward returns the activations per layer; index 0 is the input, the
// last entry the linear output.
func (n *Network) forward(x *mat.Dense) []*mat.Dense {
	acts := make([]*mat.Dense, len(n.weights)+1)
	acts[0] = x
	for l, w := range n.weights {
		rows, _ := acts[l].Dims()
		_, out := w.Dims()
		z := mat.NewDense(rows, out, nil)
		z.Mul(acts[l], w)
		for i := 0; i < rows; i++ {
			for j := 0; j < out; j++ {
				z.Set(i, j, z.At(i, j)+n.biases[l].At(0, j))
			}
		}
		if l < len(n.weights)-1 {
			z.Apply(func(_, _ int, v float64) float64 {
				if v < 0 {
					return 0
				}
				return v
			}, z)
		}
		acts[l+1] = z
	}
	return acts
}

// batchMatrix packs a slice of states into a B x inputSize matrix.
func (n *Network) batchMatrix(states [][]float64) (*mat.Dense, error) {
	if len(states) == 0 {
		return nil, ErrShapeMismatch
	}
	in := n.InputSize()
	data := make([]float64, 0, len(states)*in)
	for _, s := range states {
		if len(s) != in {
			return nil, ErrShapeMismatch
		}
		data = append(data, s...)
	}
	return mat.NewDense(len(states), in, data), nil
}

// TrainQ performs one optimizer step minimizing Huber loss between the
// predicted values of the taken actions and the supplied targets. weights
// are per-sample importance weights (nil means uniform). It returns the
// mean loss and the raw TD errors for priority updates. On a non-finite
// result no parameters are modified and ErrNonFinite is returned.
func (n *Network) TrainQ(states [][]float64, actions []int, targets, weights []float64) (float64, []float64, error) {
	if len(actions) != len(states) || len(targets) != len(states) {
		return 0, nil, ErrShapeMismatch
	}
	x, err := n.batchMatrix(states)
	if err != nil {
		return 0, nil, err
	}

	acts := n.forward(x)
	out := acts[len(acts)-1]
	batch := len(states)
	delta := mat.NewDense(batch, n.OutputSize(), nil)

	loss := 0.0
	tdErrors := make([]float64, batch)
	for i := 0; i < batch; i++ {
		a := actions[i]
		if a < 0 || a >= n.OutputSize() {
			return 0, nil, ErrShapeMismatch
		}
		e := out.At(i, a) - targets[i]
		tdErrors[i] = e
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		loss += w * huber(e, n.cfg.HuberDelta)
		delta.Set(i, a, w*huberGrad(e, n.cfg.HuberDelta)/float64(batch))
	}
	loss /= float64(batch)
	if !isFinite(loss) {
		return 0, nil, ErrNonFinite
	}

	if err := n.backward(acts, delta); err != nil {
		return 0, nil, err
	}
	return loss, tdErrors, nil
}

// TrainPolicy performs one gradient step maximizing the advantage-weighted
// log-likelihood of the taken actions plus an entropy bonus.
func (n *Network) TrainPolicy(states [][]float64, actions []int, advantages []float64, entropyCoef float64) (float64, error) {
	if len(actions) != len(states) || len(advantages) != len(states) {
		return 0, ErrShapeMismatch
	}
	x, err := n.batchMatrix(states)
	if err != nil {
		return 0, err
	}

	acts := n.forward(x)
	out := acts[len(acts)-1]
	batch := len(states)
	width := n.OutputSize()
	delta := mat.NewDense(batch, width, nil)

	loss := 0.0
	for i := 0; i < batch; i++ {
		a := actions[i]
		if a < 0 || a >= width {
			return 0, ErrShapeMismatch
		}
		p := softmax(out.RawRowView(i))
		entropy := 0.0
		for _, pj := range p {
			if pj > 0 {
				entropy -= pj * math.Log(pj)
			}
		}
		logPA := math.Log(math.Max(p[a], 1e-12))
		loss += -advantages[i]*logPA - entropyCoef*entropy

		for j := 0; j < width; j++ {
			grad := advantages[i] * p[j]
			if j == a {
				grad = advantages[i] * (p[j] - 1)
			}
			logPJ := math.Log(math.Max(p[j], 1e-12))
			grad += entropyCoef * p[j] * (logPJ + entropy)
			delta.Set(i, j, grad/float64(batch))
		}
	}
	loss /= float64(batch)
	if !isFinite(loss) {
		return 0, ErrNonFinite
	}

	if err := n.backward(acts, delta); err != nil {
		return 0, err
	}
	return loss, nil
}

// backward propagates the output delta, clips gradients, and applies one
// SGD-with-momentum update. Gradients are staged and checked before any
// parameter is written so a non-finite step leaves the network untouched.
func (n *Network) backward(acts []*mat.Dense, delta *mat.Dense) error {
	layers := len(n.weights)
	gradW := make([]*mat.Dense, layers)
	gradB := make([]*mat.Dense, layers)

	for l := layers - 1; l >= 0; l-- {
		in, out := n.weights[l].Dims()
		gW := mat.NewDense(in, out, nil)
		gW.Mul(acts[l].T(), delta)
		gB := mat.NewDense(1, out, nil)
		rows, _ := delta.Dims()
		for j := 0; j < out; j++ {
			sum := 0.0
			for i := 0; i < rows; i++ {
				sum += delta.At(i, j)
			}
			gB.Set(0, j, sum)
		}
		gradW[l], gradB[l] = gW, gB

		if l > 0 {
			prev := mat.NewDense(rows, in, nil)
			prev.Mul(delta, n.weights[l].T())
			// ReLU derivative gate on the hidden activation
			prev.Apply(func(i, j int, v float64) float64 {
				if acts[l].At(i, j) <= 0 {
					return 0
				}
				return v
			}, prev)
			delta = prev
		}
	}

	for l := 0; l < layers; l++ {
		if n.cfg.GradClip > 0 {
			clip(gradW[l], n.cfg.GradClip)
			clip(gradB[l], n.cfg.GradClip)
		}
		if !denseFinite(gradW[l]) || !denseFinite(gradB[l]) {
			return ErrNonFinite
		}
	}

	for l := 0; l < layers; l++ {
		applyMomentum(n.weights[l], n.velW[l], gradW[l], n.cfg)
		applyMomentum(n.biases[l], n.velB[l], gradB[l], n.cfg)
	}
	return nil
}

func applyMomentum(param, vel, grad *mat.Dense, cfg Config) {
	rows, cols := param.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := cfg.Momentum*vel.At(i, j) - cfg.LearningRate*grad.At(i, j)
			vel.Set(i, j, v)
			param.Set(i, j, param.At(i, j)+v)
		}
	}
}

func clip(m *mat.Dense, bound float64) {
	m.Apply(func(_, _ int, v float64) float64 {
		if v > bound {
			return bound
		}
		if v < -bound {
			return -bound
		}
		return v
	}, m)
}

// CopyFrom hard-copies all parameters from src. Panics if architectures
// differ; the caller constructs online and target nets from one spec.
func (n *Network) CopyFrom(src *Network) {
	for l := range n.weights {
		n.weights[l].Copy(src.weights[l])
		n.biases[l].Copy(src.biases[l])
	}
}

// SoftUpdate blends src parameters in with factor tau:
// param = (1-tau)*param + tau*src.
func (n *Network) SoftUpdate(src *Network, tau float64) {
	for l := range n.weights {
		blend(n.weights[l], src.weights[l], tau)
		blend(n.biases[l], src.biases[l], tau)
	}
}

func blend(dst, src *mat.Dense, tau float64) {
	rows, cols := dst.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			dst.Set(i, j, (1-tau)*dst.At(i, j)+tau*src.At(i, j))
		}
	}
}

// Clone returns an independent network with identical parameters.
func (n *Network) Clone() *Network {
	c := New(n.sizes, n.cfg, rand.New(rand.NewSource(0)))
	c.CopyFrom(n)
	return c
}

func huber(e, delta float64) float64 {
	a := math.Abs(e)
	if a <= delta {
		return 0.5 * e * e
	}
	return delta * (a - 0.5*delta)
}

func huberGrad(e, delta float64) float64 {
	if math.Abs(e) <= delta {
		return e
	}
	if e > 0 {
		return delta
	}
	return -delta
}

func softmax(logits []float64) []float64 {
	maxL := math.Inf(-1)
	for _, v := range logits {
		if v > maxL {
			maxL = v
		}
	}
	out := make([]float64, len(logits))
	sum := 0.0
	for i, v := range logits {
		out[i] = math.Exp(v - maxL)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func denseFinite(m *mat.Dense) bool {
	rows, cols := m.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if !isFinite(m.At(i, j)) {
				return false
			}
		}
	}
	return true
}

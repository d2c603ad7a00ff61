package nn

import "math"

// Sigmoid is evaluated on whichever side keeps exp from overflowing.
func Sigmoid(x float64) float64 {
	if x >= 0 {
		return 1.0 / (1.0 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

func ReLU(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

func ReLUPrime(x float64) float64 {
	if x > 0 {
		return 1
	}
	return 0
}

// Activation names accepted by Conv2D and Dense.
const (
	Linear     = ""
	ActReLU    = "relu"
	ActSigmoid = "sigmoid"
)

func activate(name string, v []float64) {
	switch name {
	case ActReLU:
		for i, x := range v {
			v[i] = ReLU(x)
		}
	case ActSigmoid:
		for i, x := range v {
			v[i] = Sigmoid(x)
		}
	}
}

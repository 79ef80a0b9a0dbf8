package tensor

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// Backward propagates gradients from a scalar tensor to every leaf that
// requires gradients. Leaf gradients accumulate across calls until they are
// zeroed; intermediate results never keep a gradient.
func (t *Tensor) Backward() error {
	if !t.requiresGrad {
		return errors.New("backward: tensor does not require gradients")
	}
	if t.NumElems != 1 {
		return newShapeError("Backward", "root", []int{1}, t.Shape)
	}
	if t.DType != Float64 {
		return fmt.Errorf("backward: root dtype is %s, expected Float64", t.DType)
	}

	seed, err := Ones(t.Shape, Float64)
	if err != nil {
		return err
	}
	return t.BackwardWithGrad(seed)
}

// BackwardWithGrad propagates an explicit upstream gradient shaped like t.
func (t *Tensor) BackwardWithGrad(gradOut *Tensor) error {
	if gradOut == nil || !ShapesEqual(gradOut.Shape, t.Shape) {
		var actual []int
		if gradOut != nil {
			actual = gradOut.Shape
		}
		return newShapeError("Backward", "seed gradient", t.Shape, actual)
	}

	order := topologicalOrder(t)
	pending := map[*Tensor]*Tensor{t: gradOut}

	for i := len(order) - 1; i >= 0; i-- {
		node := order[i]
		g := pending[node]
		if g == nil {
			continue
		}
		delete(pending, node)

		if node.creator == nil {
			if node.requiresGrad {
				if err := node.accumulateGrad(g); err != nil {
					return err
				}
			}
			continue
		}

		inputGrads, err := node.creator.Backward(g)
		if err != nil {
			return errors.Wrapf(err, "backward through %T", node.creator)
		}
		for j, in := range node.creator.Inputs() {
			if j >= len(inputGrads) || inputGrads[j] == nil || !in.requiresGrad {
				continue
			}
			ig := inputGrads[j]
			if !ShapesEqual(ig.Shape, in.Shape) {
				return newShapeError(fmt.Sprintf("%T", node.creator), "input gradient", in.Shape, ig.Shape)
			}
			if existing, ok := pending[in]; ok {
				floats.Add(existing.Float64s(), ig.Float64s())
				continue
			}
			owned, err := ig.Clone()
			if err != nil {
				return err
			}
			pending[in] = owned
		}
	}
	return nil
}

// topologicalOrder lists the graph reachable from root with every node after
// all of its inputs.
func topologicalOrder(root *Tensor) []*Tensor {
	visited := make(map[*Tensor]bool)
	var order []*Tensor

	var visit func(n *Tensor)
	visit = func(n *Tensor) {
		if visited[n] {
			return
		}
		visited[n] = true
		if n.creator != nil {
			for _, in := range n.creator.Inputs() {
				if in.requiresGrad {
					visit(in)
				}
			}
		}
		order = append(order, n)
	}
	visit(root)
	return order
}

package ir

import "fmt"

// Wire instruction kinds.
const (
	KindConst       = "const"
	KindLoadLocal   = "load_local"
	KindStoreLocal  = "store_local"
	KindLoadGlobal  = "load_global"
	KindStoreGlobal = "store_global"
	KindBinOp       = "binop"
	KindUnOp        = "unop"
	KindCall        = "call"
	KindPop         = "pop"
	KindGoto        = "goto"
	KindCondBranch  = "cbranch"
	KindReturn      = "return"
)

// WireInstruction is the serialisable form of an Instruction.
type WireInstruction struct {
	Kind   string   `json:"kind" msgpack:"kind"`
	Name   string   `json:"name,omitempty" msgpack:"name,omitempty"`
	Value  int64    `json:"value,omitempty" msgpack:"value,omitempty"`
	Argc   int      `json:"argc,omitempty" msgpack:"argc,omitempty"`
	Labels []string `json:"labels,omitempty" msgpack:"labels,omitempty"`
}

// WireBlock is the serialisable form of a BasicBlock.
type WireBlock struct {
	Label        string            `json:"label" msgpack:"label"`
	Instructions []WireInstruction `json:"instructions" msgpack:"instructions"`
}

// WireFunction is a flattened function in serialisable form.
type WireFunction struct {
	Name   string      `json:"name" msgpack:"name"`
	Params []string    `json:"params" msgpack:"params"`
	Blocks []WireBlock `json:"blocks" msgpack:"blocks"`
}

// EncodeInstruction converts an instruction to its wire form.
func EncodeInstruction(instr Instruction) WireInstruction {
	switch i := instr.(type) {
	case Const:
		return WireInstruction{Kind: KindConst, Value: i.Value}
	case LoadLocal:
		return WireInstruction{Kind: KindLoadLocal, Name: i.Name}
	case StoreLocal:
		return WireInstruction{Kind: KindStoreLocal, Name: i.Name}
	case LoadGlobal:
		return WireInstruction{Kind: KindLoadGlobal, Name: i.Name}
	case StoreGlobal:
		return WireInstruction{Kind: KindStoreGlobal, Name: i.Name}
	case BinOp:
		return WireInstruction{Kind: KindBinOp, Name: string(i.Op)}
	case UnOp:
		return WireInstruction{Kind: KindUnOp, Name: string(i.Op)}
	case Call:
		return WireInstruction{Kind: KindCall, Name: i.Name, Argc: i.Argc}
	case Pop:
		return WireInstruction{Kind: KindPop}
	case Goto:
		return WireInstruction{Kind: KindGoto, Labels: []string{i.Label}}
	case CondBranch:
		return WireInstruction{Kind: KindCondBranch, Labels: []string{i.True, i.False}}
	case Return:
		return WireInstruction{Kind: KindReturn}
	default:
		panic(fmt.Sprintf("ir: unknown instruction type %T", instr))
	}
}

// DecodeInstruction converts a wire instruction back to an Instruction.
func DecodeInstruction(w WireInstruction) (Instruction, error) {
	switch w.Kind {
	case KindConst:
		return Const{Value: w.Value}, nil
	case KindLoadLocal:
		return LoadLocal{Name: w.Name}, nil
	case KindStoreLocal:
		return StoreLocal{Name: w.Name}, nil
	case KindLoadGlobal:
		return LoadGlobal{Name: w.Name}, nil
	case KindStoreGlobal:
		return StoreGlobal{Name: w.Name}, nil
	case KindBinOp:
		if !Op(w.Name).IsBinary() {
			return nil, fmt.Errorf("unknown binary operator %q", w.Name)
		}
		return BinOp{Op: Op(w.Name)}, nil
	case KindUnOp:
		if !Op(w.Name).IsUnary() {
			return nil, fmt.Errorf("unknown unary operator %q", w.Name)
		}
		return UnOp{Op: Op(w.Name)}, nil
	case KindCall:
		return Call{Name: w.Name, Argc: w.Argc}, nil
	case KindPop:
		return Pop{}, nil
	case KindGoto:
		if len(w.Labels) != 1 {
			return nil, fmt.Errorf("goto needs 1 label, got %d", len(w.Labels))
		}
		return Goto{Label: w.Labels[0]}, nil
	case KindCondBranch:
		if len(w.Labels) != 2 {
			return nil, fmt.Errorf("cbranch needs 2 labels, got %d", len(w.Labels))
		}
		return CondBranch{True: w.Labels[0], False: w.Labels[1]}, nil
	case KindReturn:
		return Return{}, nil
	default:
		return nil, fmt.Errorf("unknown instruction kind %q", w.Kind)
	}
}

// EncodeFunction converts a flattened function to its wire form.
func EncodeFunction(name string, params []string, blocks []BasicBlock) WireFunction {
	wf := WireFunction{
		Name:   name,
		Params: params,
		Blocks: make([]WireBlock, 0, len(blocks)),
	}
	for _, b := range blocks {
		wb := WireBlock{
			Label:        b.Label,
			Instructions: make([]WireInstruction, 0, len(b.Instructions)),
		}
		for _, instr := range b.Instructions {
			wb.Instructions = append(wb.Instructions, EncodeInstruction(instr))
		}
		wf.Blocks = append(wf.Blocks, wb)
	}
	return wf
}

// DecodeBlocks converts the wire blocks of wf back to basic blocks.
func (wf WireFunction) DecodeBlocks() ([]BasicBlock, error) {
	blocks := make([]BasicBlock, 0, len(wf.Blocks))
	for _, wb := range wf.Blocks {
		b := BasicBlock{
			Label:        wb.Label,
			Instructions: make([]Instruction, 0, len(wb.Instructions)),
		}
		for i, wi := range wb.Instructions {
			instr, err := DecodeInstruction(wi)
			if err != nil {
				return nil, fmt.Errorf("block %s instruction %d: %w", wb.Label, i, err)
			}
			b.Instructions = append(b.Instructions, instr)
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

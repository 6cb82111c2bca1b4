package ast

import (
	"strings"
)

func (t Term) String() string {
	if len(t.Params) == 0 {
		return "<term " + t.Name + ">"
	}
	return "<term " + t.Name + "(" + strings.Join(t.Params, ", ") + ")>"
}

func (p Projection) String() string {
	return "<projection " + p.Key + ">"
}

func (b BagVal) String() string {
	if len(b.Exprs) == 0 {
		return "<bag>"
	}
	return "<bag " + joinExprs(b.Exprs) + ">"
}

func (r RecordVal) String() string {
	var sb strings.Builder
	sb.WriteString("<record {")
	for i, k := range r.Keys() {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(k)
		sb.WriteString(": ")
		sb.WriteString(renderExpr(r.Dicty[k]))
	}
	sb.WriteString("}>")
	return sb.String()
}

func (l LetBody) String() string {
	s := "(" + strings.Join(l.Params, ", ") + ") =>"
	if len(l.Exprs) == 0 {
		return s
	}
	return s + " " + joinExprs(l.Exprs)
}

// String renders the program as a multi-line block, lets sorted by name.
//
//	<program
//	  lets:
//	    addX = (x) => <projection x>
//	  exprs:
//	    <term addX(y)>
//	>
func (p *Program) String() string {
	var sb strings.Builder
	sb.WriteString("<program\n  lets:\n")
	for _, name := range p.LetNames() {
		sb.WriteString("    ")
		sb.WriteString(name)
		sb.WriteString(" = ")
		sb.WriteString(p.Lets[name].String())
		sb.WriteByte('\n')
	}
	sb.WriteString("  exprs:\n")
	for _, e := range p.Exprs {
		sb.WriteString("    ")
		sb.WriteString(renderExpr(e))
		sb.WriteByte('\n')
	}
	sb.WriteString(">")
	return sb.String()
}

func joinExprs(exprs []Expr) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = renderExpr(e)
	}
	return strings.Join(parts, " ")
}

// renderExpr keeps rendering total when a malformed tree holds a nil stage.
func renderExpr(e Expr) string {
	if e == nil {
		return "<nil>"
	}
	return e.String()
}

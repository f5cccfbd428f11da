package art

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"poetry-pipeline/internal/domain/model"
)

const (
	canvasW = 400.0
	canvasH = 500.0
	outW    = 1200.0
	outH    = 800.0
	scale   = 1.5

	paper = "#faf8f5"
	frame = "#d4c5b0"
	ink   = "#2c2c2c"
)

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func val(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func pathData(cmds []model.DrawCommand, offX, offY float64) string {
	sx := func(p *float64) float64 { return val(p, 0)*scale + offX }
	sy := func(p *float64) float64 { return val(p, 0)*scale + offY }

	parts := make([]string, 0, len(cmds))
	for _, c := range cmds {
		x, y := sx(c.X), sy(c.Y)
		switch c.Type {
		case "moveTo":
			parts = append(parts, fmt.Sprintf("M %s %s", num(x), num(y)))
		case "lineTo":
			parts = append(parts, fmt.Sprintf("L %s %s", num(x), num(y)))
		case "quadraticCurveTo":
			parts = append(parts, fmt.Sprintf("Q %s %s %s %s", num(sx(c.X1)), num(sy(c.Y1)), num(x), num(y)))
		case "bezierCurveTo":
			parts = append(parts, fmt.Sprintf("C %s %s %s %s %s %s",
				num(sx(c.X1)), num(sy(c.Y1)), num(sx(c.X2)), num(sy(c.Y2)), num(x), num(y)))
		case "closePath":
			parts = append(parts, "Z")
		case "arc":
			r := val(c.Radius, 10) * scale
			start := val(c.StartAngle, 0)
			end := val(c.EndAngle, 2*math.Pi)
			if math.Abs(end-start) >= 2*math.Pi-0.01 {
				parts = append(parts,
					fmt.Sprintf("M %s %s", num(x+r), num(y)),
					fmt.Sprintf("A %s %s 0 1 1 %s %s", num(r), num(r), num(x-r), num(y)),
					fmt.Sprintf("A %s %s 0 1 1 %s %s", num(r), num(r), num(x+r), num(y)),
					"Z")
				continue
			}
			large := 0
			if end-start > math.Pi {
				large = 1
			}
			parts = append(parts,
				fmt.Sprintf("M %s %s", num(x+r*math.Cos(start)), num(y+r*math.Sin(start))),
				fmt.Sprintf("A %s %s 0 %d 1 %s %s", num(r), num(r), large, num(x+r*math.Cos(end)), num(y+r*math.Sin(end))))
		}
	}
	return strings.Join(parts, " ")
}

// RenderSVG scales a 400x500 drawing by 1.5 and centers it on a 1200x800 framed page.
func RenderSVG(d model.DrawingData) string {
	offX := (outW - canvasW*scale) / 2
	offY := (outH - canvasH*scale) / 2

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%s" height="%s" viewBox="0 0 %s %s">`+"\n",
		num(outW), num(outH), num(outW), num(outH))
	fmt.Fprintf(&b, `  <rect width="%s" height="%s" fill="%s"/>`+"\n", num(outW), num(outH), paper)
	fmt.Fprintf(&b, `  <rect x="30" y="30" width="%s" height="%s" fill="none" stroke="%s" stroke-width="2"/>`+"\n",
		num(outW-60), num(outH-60), frame)
	for _, p := range d.Paths {
		lw := p.LineWidth
		if lw <= 0 {
			lw = 2
		}
		fill, stroke := "none", ink
		if p.Fill {
			fill = ink
		}
		if p.Stroke != nil && !*p.Stroke {
			stroke = "none"
		}
		fmt.Fprintf(&b, `  <path d="%s" fill="%s" stroke="%s" stroke-width="%s" stroke-linecap="round" stroke-linejoin="round"/>`+"\n",
			pathData(p.Commands, offX, offY), fill, stroke, num(lw*scale))
	}
	b.WriteString("</svg>")
	return b.String()
}

func pt(f float64) *float64 { return &f }

// DefaultDrawing is a quill with ink drops, used when no drawing can be recovered.
func DefaultDrawing() model.DrawingData {
	yes := true
	d := model.DrawingData{}
	d.Paths = append(d.Paths, model.IllustrationPath{
		Stroke: &yes, LineWidth: 2,
		Commands: []model.DrawCommand{
			{Type: "moveTo", X: pt(200), Y: pt(50)},
			{Type: "quadraticCurveTo", X1: pt(210), Y1: pt(150), X: pt(180), Y: pt(350)},
			{Type: "lineTo", X: pt(175), Y: pt(360)},
			{Type: "lineTo", X: pt(170), Y: pt(350)},
			{Type: "quadraticCurveTo", X1: pt(190), Y1: pt(150), X: pt(200), Y: pt(50)},
		},
	})
	for i := 0; i < 8; i++ {
		f := float64(i)
		d.Paths = append(d.Paths,
			model.IllustrationPath{Stroke: &yes, LineWidth: 1, Commands: []model.DrawCommand{
				{Type: "moveTo", X: pt(195 - f*2), Y: pt(80 + f*30)},
				{Type: "quadraticCurveTo", X1: pt(150 - f*5), Y1: pt(70 + f*30), X: pt(120 - f*3), Y: pt(90 + f*30)},
			}},
			model.IllustrationPath{Stroke: &yes, LineWidth: 1, Commands: []model.DrawCommand{
				{Type: "moveTo", X: pt(205 + f*2), Y: pt(80 + f*30)},
				{Type: "quadraticCurveTo", X1: pt(250 + f*5), Y1: pt(70 + f*30), X: pt(280 + f*3), Y: pt(90 + f*30)},
			}},
		)
	}
	d.Paths = append(d.Paths,
		model.IllustrationPath{Stroke: &yes, Fill: true, LineWidth: 1, Commands: []model.DrawCommand{{Type: "arc", X: pt(178), Y: pt(370), Radius: pt(5)}}},
		model.IllustrationPath{Stroke: &yes, Fill: true, LineWidth: 1, Commands: []model.DrawCommand{{Type: "arc", X: pt(185), Y: pt(385), Radius: pt(3)}}},
		model.IllustrationPath{Stroke: &yes, LineWidth: 1, Commands: []model.DrawCommand{
			{Type: "moveTo", X: pt(80), Y: pt(420)},
			{Type: "quadraticCurveTo", X1: pt(200), Y1: pt(400), X: pt(320), Y: pt(420)},
		}},
	)
	return d
}

package stats

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// 图表尺寸（像素）
const (
	chartHeight  = 320
	chartMargin  = 40
	chartTitleY  = 24
	barWidth     = 24
	barGap       = 8
	labelOffsetY = 16
)

var (
	chartBackground = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	chartBar        = color.NRGBA{R: 66, G: 133, B: 244, A: 255}
	chartText       = color.NRGBA{R: 33, G: 33, B: 33, A: 255}
)

// barChart 绘制柱状图并编码为 PNG
func barChart(title string, labels []string, values []int64) ([]byte, error) {
	if len(labels) != len(values) {
		return nil, fmt.Errorf("chart has %d labels but %d values", len(labels), len(values))
	}
	if len(values) == 0 {
		return nil, nil
	}

	var peak int64
	for _, v := range values {
		if v > peak {
			peak = v
		}
	}

	width := chartMargin*2 + len(values)*(barWidth+barGap)
	baseline := chartHeight - chartMargin
	plotHeight := baseline - chartMargin

	canvas := imaging.New(width, chartHeight, chartBackground)
	drawText(canvas, chartMargin, chartTitleY, title)

	for i, v := range values {
		x := chartMargin + i*(barWidth+barGap)
		if peak > 0 && v > 0 {
			h := int(int64(plotHeight) * v / peak)
			if h < 1 {
				h = 1
			}
			bar := imaging.New(barWidth, h, chartBar)
			canvas = imaging.Paste(canvas, bar, image.Pt(x, baseline-h))
		}
		drawText(canvas, x, baseline+labelOffsetY, labels[i])
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, canvas, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode chart: %w", err)
	}
	return buf.Bytes(), nil
}

// drawText 在指定位置绘制文字，y 为基线
func drawText(dst *image.NRGBA, x, y int, text string) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(chartText),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

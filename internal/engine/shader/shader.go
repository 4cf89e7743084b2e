// Package shader compiles and links the viewer's GLSL programs.
package shader

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-gl/gl/v4.1-core/gl"
)

// Program is a linked GL program with a uniform location cache.
type Program struct {
	ID       uint32
	name     string
	uniforms map[string]int32
}

// Compile compiles vertex and fragment sources and links them. defines are
// injected as #define lines right after the #version directive.
func Compile(name, vertexSrc, fragmentSrc string, defines map[string]string) (*Program, error) {
	vert, err := compileShader(Preprocess(vertexSrc, defines), gl.VERTEX_SHADER)
	if err != nil {
		return nil, fmt.Errorf("%s: vertex shader: %w", name, err)
	}
	defer gl.DeleteShader(vert)

	frag, err := compileShader(Preprocess(fragmentSrc, defines), gl.FRAGMENT_SHADER)
	if err != nil {
		return nil, fmt.Errorf("%s: fragment shader: %w", name, err)
	}
	defer gl.DeleteShader(frag)

	id := gl.CreateProgram()
	gl.AttachShader(id, vert)
	gl.AttachShader(id, frag)
	gl.LinkProgram(id)

	var status int32
	gl.GetProgramiv(id, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLen int32
		gl.GetProgramiv(id, gl.INFO_LOG_LENGTH, &logLen)
		log := make([]byte, logLen+1)
		gl.GetProgramInfoLog(id, logLen, nil, &log[0])
		gl.DeleteProgram(id)
		return nil, fmt.Errorf("%s: link: %s", name, infoLog(log))
	}

	return &Program{ID: id, name: name, uniforms: make(map[string]int32)}, nil
}

func compileShader(source string, shaderType uint32) (uint32, error) {
	sh := gl.CreateShader(shaderType)
	csource, free := gl.Strs(source + "\x00")
	gl.ShaderSource(sh, 1, csource, nil)
	free()
	gl.CompileShader(sh)

	var status int32
	gl.GetShaderiv(sh, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLen int32
		gl.GetShaderiv(sh, gl.INFO_LOG_LENGTH, &logLen)
		log := make([]byte, logLen+1)
		gl.GetShaderInfoLog(sh, logLen, nil, &log[0])
		gl.DeleteShader(sh)
		return 0, fmt.Errorf("%s", infoLog(log))
	}

	return sh, nil
}

// Use binds the program.
func (p *Program) Use() {
	gl.UseProgram(p.ID)
}

// Uniform returns the location of a uniform, or -1 if it is inactive.
// Lookups are cached per program.
func (p *Program) Uniform(name string) int32 {
	if loc, ok := p.uniforms[name]; ok {
		return loc
	}
	loc := gl.GetUniformLocation(p.ID, gl.Str(name+"\x00"))
	p.uniforms[name] = loc
	return loc
}

// Delete releases the program.
func (p *Program) Delete() {
	if p.ID != 0 {
		gl.DeleteProgram(p.ID)
		p.ID = 0
	}
}

// Preprocess inserts one #define per entry after the #version line, in
// sorted key order. Sources without a #version line get them prepended.
func Preprocess(src string, defines map[string]string) string {
	if len(defines) == 0 {
		return src
	}

	keys := make([]string, 0, len(defines))
	for k := range defines {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString("#define ")
		b.WriteString(k)
		if v := defines[k]; v != "" {
			b.WriteByte(' ')
			b.WriteString(v)
		}
		b.WriteByte('\n')
	}

	if strings.HasPrefix(src, "#version") {
		nl := strings.IndexByte(src, '\n')
		if nl < 0 {
			return src + "\n" + b.String()
		}
		return src[:nl+1] + b.String() + src[nl+1:]
	}
	return b.String() + src
}

func infoLog(buf []byte) string {
	return strings.TrimSpace(strings.TrimRight(string(buf), "\x00"))
}

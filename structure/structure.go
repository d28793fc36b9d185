// Package structure reads alpha-carbon traces from PDB and mmCIF files for
// use as guide structures.
package structure

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/LiorZ/BoltzDesign1/tensor"
)

// ErrChainNotFound is returned when the first model has no chain with the
// requested identifier.
var ErrChainNotFound = errors.New("chain not found")

const caName = "CA"

// LoadCA returns the CA coordinates of chain in the first model of the file
// at path, one per residue in file order. Files ending in .cif are read as
// mmCIF, everything else as PDB.
func LoadCA(path, chain string) ([]r3.Vec, error) {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var atoms []atom
	if strings.EqualFold(filepath.Ext(path), ".cif") {
		atoms, err = readCIF(f)
	} else {
		atoms, err = readPDB(f)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	pts, found := selectCA(atoms, chain)
	if !found {
		return nil, fmt.Errorf("%w: chain %s in %s", ErrChainNotFound, chain, path)
	}
	return pts, nil
}

// Tensor packs points into an (n, 3) tensor.
func Tensor(pts []r3.Vec) *tensor.Tensor {
	t := tensor.New(len(pts), 3)
	for i, p := range pts {
		t.Data[i*3], t.Data[i*3+1], t.Data[i*3+2] = p.X, p.Y, p.Z
	}
	return t
}

type atom struct {
	chain   string
	residue string // sequence number plus insertion code
	name    string
	pos     r3.Vec
}

// selectCA keeps the first CA seen for each residue of chain.
func selectCA(atoms []atom, chain string) ([]r3.Vec, bool) {
	found := false
	seen := make(map[string]bool)
	var pts []r3.Vec
	for _, a := range atoms {
		if a.chain != chain {
			continue
		}
		found = true
		if a.name != caName || seen[a.residue] {
			continue
		}
		seen[a.residue] = true
		pts = append(pts, a.pos)
	}
	return pts, found
}

func readPDB(r io.Reader) ([]atom, error) {
	var atoms []atom
	sc := bufio.NewScanner(r)
	for ln := 1; sc.Scan(); ln++ {
		line := sc.Text()
		if strings.HasPrefix(line, "ENDMDL") {
			break
		}
		if !strings.HasPrefix(line, "ATOM  ") && !strings.HasPrefix(line, "HETATM") {
			continue
		}
		if len(line) < 54 {
			return nil, fmt.Errorf("line %d: short coordinate record", ln)
		}
		var xyz [3]float64
		for i := range xyz {
			v, err := strconv.ParseFloat(strings.TrimSpace(line[30+8*i:38+8*i]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", ln, err)
			}
			xyz[i] = v
		}
		atoms = append(atoms, atom{
			chain:   strings.TrimSpace(line[21:22]),
			residue: strings.TrimSpace(line[22:27]),
			name:    strings.TrimSpace(line[12:16]),
			pos:     r3.Vec{X: xyz[0], Y: xyz[1], Z: xyz[2]},
		})
	}
	return atoms, sc.Err()
}

func readCIF(r io.Reader) ([]atom, error) {
	var (
		cols    []string
		inLoop  bool
		inSite  bool
		atoms   []atom
		model   string
		columns map[string]int
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 1<<16), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "" || line == "#":
			if inSite && columns != nil {
				return atoms, nil
			}
			inLoop, inSite = false, false
			continue
		case line == "loop_":
			if inSite && columns != nil {
				return atoms, nil
			}
			inLoop, inSite, cols = true, false, nil
			continue
		case strings.HasPrefix(line, "_"):
			if inSite && columns != nil {
				return atoms, nil
			}
			if inLoop && strings.HasPrefix(line, "_atom_site.") {
				inSite = true
				cols = append(cols, strings.Fields(line)[0][len("_atom_site."):])
			}
			continue
		}
		if !inSite {
			continue
		}
		if columns == nil {
			columns = make(map[string]int, len(cols))
			for i, c := range cols {
				columns[c] = i
			}
			for _, need := range []string{"Cartn_x", "Cartn_y", "Cartn_z"} {
				if _, ok := columns[need]; !ok {
					return nil, fmt.Errorf("atom_site loop has no %s column", need)
				}
			}
		}
		fields := splitCIF(line)
		if len(fields) != len(cols) {
			return nil, fmt.Errorf("atom_site row has %d fields, want %d", len(fields), len(cols))
		}
		get := func(names ...string) string {
			for _, n := range names {
				if i, ok := columns[n]; ok && fields[i] != "?" && fields[i] != "." {
					return fields[i]
				}
			}
			return ""
		}
		if m := get("pdbx_PDB_model_num"); m != "" {
			if model == "" {
				model = m
			} else if m != model {
				return atoms, nil
			}
		}
		var xyz [3]float64
		for i, c := range []string{"Cartn_x", "Cartn_y", "Cartn_z"} {
			v, err := strconv.ParseFloat(fields[columns[c]], 64)
			if err != nil {
				return nil, err
			}
			xyz[i] = v
		}
		atoms = append(atoms, atom{
			chain:   get("auth_asym_id", "label_asym_id"),
			residue: get("auth_seq_id", "label_seq_id") + get("pdbx_PDB_ins_code"),
			name:    get("auth_atom_id", "label_atom_id"),
			pos:     r3.Vec{X: xyz[0], Y: xyz[1], Z: xyz[2]},
		})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return atoms, nil
}

// splitCIF splits a data row on whitespace, honoring single and double
// quoted values.
func splitCIF(line string) []string {
	var fields []string
	for i := 0; i < len(line); {
		for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
			i++
		}
		if i >= len(line) {
			break
		}
		if q := line[i]; q == '\'' || q == '"' {
			j := i + 1
			for j < len(line) && !(line[j] == q && (j+1 == len(line) || line[j+1] == ' ' || line[j+1] == '\t')) {
				j++
			}
			fields = append(fields, line[i+1:min(j, len(line))])
			i = j + 1
			continue
		}
		j := i
		for j < len(line) && line[j] != ' ' && line[j] != '\t' {
			j++
		}
		fields = append(fields, line[i:j])
		i = j
	}
	return fields
}

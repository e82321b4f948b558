package config

import (
	"encoding/json"
	"fmt"
	"runtime"
)

// ManifestTemplate is the dappled.yml written by `dappled init`.
const ManifestTemplate = `
notebook_id:

name: Untitled

filename: notebook.ipynb

description:

packages:
- dappled-core

channels:
- http://conda.dappled.io

#downloads:
`

const notebookTemplate = `
{
 "cells": [
  {
   "cell_type": "code",
   "execution_count": null,
   "metadata": {
    "collapsed": true
   },
   "outputs": [],
   "source": []
  }
 ],
 "metadata": {
 },
 "nbformat": 4,
 "nbformat_minor": 1
}
`

// Kernelspec is the notebook metadata entry that selects the Jupyter kernel.
type Kernelspec struct {
	DisplayName string `json:"display_name"`
	Language    string `json:"language"`
	Name        string `json:"name"`
}

// ApplyLanguage adds the interpreter packages for language ("python2", "python3", "r" or "R")
// to a freshly templated manifest and returns the matching kernelspec.
func ApplyLanguage(m *Manifest, language string) (Kernelspec, error) {
	switch language {
	case "python2":
		m.Insert(KeyPackages, 0, "python=2")
		return Kernelspec{DisplayName: "Python 2", Language: "python", Name: "python2"}, nil
	case "python3":
		m.Insert(KeyPackages, 0, "python=3")
		return Kernelspec{DisplayName: "Python 3", Language: "python", Name: "python3"}, nil
	case "r", "R":
		if runtime.GOOS == "linux" {
			// https://github.com/jupyter/docker-stacks/issues/210
			m.Insert(KeyPackages, 0, "r-base=3.3.1=1")
		}
		m.Insert(KeyPackages, 0, "r-irkernel")
		m.Insert(KeyChannels, 0, "r")
		return Kernelspec{DisplayName: "R", Language: "R", Name: "ir"}, nil
	default:
		return Kernelspec{}, Fail("unsupported language %q (choose python2, python3 or r)", language)
	}
}

// NotebookDocument renders an empty notebook with one code cell using the given
// kernel. A zero spec leaves the kernel for Jupyter to choose.
func NotebookDocument(spec Kernelspec) ([]byte, error) {
	var nb map[string]any
	if err := json.Unmarshal([]byte(notebookTemplate), &nb); err != nil {
		return nil, fmt.Errorf("notebook template: %w", err)
	}
	if spec != (Kernelspec{}) {
		nb["metadata"].(map[string]any)["kernelspec"] = spec
	}
	data, err := json.Marshal(nb)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

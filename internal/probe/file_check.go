package probe

import "os"

// FileCheck reports ready once Path exists. Backends signal readiness by
// creating a marker file under the shared output directory.
type FileCheck struct{ Path string }

func (c FileCheck) Ready() (bool, error) {
	_, err := os.Stat(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c FileCheck) Describe() string { return "file:" + c.Path }

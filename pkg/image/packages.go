package image

import "fmt"

// InstalledPackage pairs a package URL with an opaque package object. The
// library makes no assumption about the package object contents.
type InstalledPackage struct {
	PackageURL string
	Package    interface{}
}

// PackagesGetter collects the installed system packages of a root filesystem,
// typically by querying a package database found below rootfsDir.
type PackagesGetter func(rootfsDir string) ([]InstalledPackage, error)

// LayerPackage is an installed package attributed to the layer where its
// package URL was first seen.
type LayerPackage struct {
	PackageURL string
	Package    interface{}
	Layer      *Layer
}

// GetInstalledPackages returns the unique installed packages found across the
// extracted layers, bottom to top. A package is reported in the layer where
// its package URL is first seen.
func (i *Image) GetInstalledPackages(getter PackagesGetter) ([]LayerPackage, error) {
	seen := map[string]bool{}
	packages := []LayerPackage{}
	for _, layer := range i.Layers {
		layerPackages, err := layer.GetInstalledPackages(getter)
		if err != nil {
			return nil, err
		}
		for _, pkg := range layerPackages {
			if seen[pkg.PackageURL] {
				continue
			}
			seen[pkg.PackageURL] = true
			packages = append(packages, LayerPackage{
				PackageURL: pkg.PackageURL,
				Package:    pkg.Package,
				Layer:      layer,
			})
		}
	}
	return packages, nil
}

// GetInstalledPackages runs the getter against the extracted layer filesystem.
func (l *Layer) GetInstalledPackages(getter PackagesGetter) ([]InstalledPackage, error) {
	if l.ExtractedLocation == "" {
		return nil, fmt.Errorf("the layer has not been extracted")
	}
	return getter(l.ExtractedLocation)
}

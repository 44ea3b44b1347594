// Package geoview models a map configuration and its layer trees.
//
// A MapFeatureConfig holds the view settings and an ordered list of
// GeoviewLayerConfig roots. Each root owns a tree of LayerEntryConfig nodes;
// a node is a group iff its EntryType is EntryTypeGroup. Nodes are addressed
// outside the tree by their layer path, the root id followed by every
// ancestor layerId, joined with "/":
//
//	roads/transport/highways
//
// Call LinkTree (or CheckTree, which links as it validates) after building or
// decoding a tree so LayerPath and Root can follow parent links. Leaf status
// moves one way through the load states; ERROR is terminal for that leaf only.
//
// Resolution of user input lives in the defaults, geocore and configapi
// packages; loading lives in layer.
package geoview

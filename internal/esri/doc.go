// Package esri decodes ArcGIS REST query responses (f=json) and translates
// their native geometry encoding into canonical go-geom geometries.
package esri

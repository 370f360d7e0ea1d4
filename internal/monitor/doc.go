// Package monitor renders learned topologies and tracking beliefs: a PNG
// plot of the state graph via gonum/plot and an interactive HTML scatter
// via go-echarts.
package monitor

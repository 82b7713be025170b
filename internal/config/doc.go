// Package config はpushbridgeとtaskworkerの設定を読み込む。
//
// 読み込み順は .env ファイル、CONFIG_FILE で指定したYAMLファイル、環境変数で、
// 後のものが前の値を上書きする。未設定の項目にはデフォルト値を使う。
package config
